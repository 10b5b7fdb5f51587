package nav

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hintnav/go-hint/internal/geo"
	"github.com/hintnav/go-hint/internal/position"
	"github.com/hintnav/go-hint/internal/route"
)

// SessionConfig configures the polling loop of a navigation session
type SessionConfig struct {
	PollInterval   time.Duration
	FixTimeout     time.Duration
	Staleness      time.Duration
	StatusInterval time.Duration // distance-remaining updates, 0 disables

	Tracker TrackerConfig
}

// DefaultSessionConfig returns sensible defaults
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PollInterval:   5 * time.Second,
		FixTimeout:     10 * time.Second,
		Staleness:      30 * time.Second,
		StatusInterval: 60 * time.Second,
		Tracker:        DefaultTrackerConfig(),
	}
}

// SessionStats contains session loop counters
type SessionStats struct {
	Polls       int64 `json:"polls"`
	Updates     int64 `json:"updates"`
	MissedFixes int64 `json:"missed_fixes"`
	StaleFixes  int64 `json:"stale_fixes"`
	Events      int64 `json:"events"`
}

// Session owns one route, one tracker and one position feed for the lifetime
// of a navigation trip. Exactly one session may be active at a time; the
// session's state is mutated only from its own polling loop.
type Session struct {
	ID string

	route     *route.Route
	source    position.Source
	announcer Announcer
	cfg       SessionConfig
	logger    *slog.Logger

	mu         sync.RWMutex
	tracker    *Tracker
	stopped    bool
	stats      SessionStats
	lastStatus time.Time

	cancel context.CancelFunc
	done   chan struct{}

	subsMu sync.RWMutex
	subs   map[chan State]struct{}
}

// NewSession creates a navigation session over a validated route
func NewSession(r *route.Route, source position.Source, announcer Announcer, cfg SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		ID:        uuid.NewString(),
		route:     r,
		source:    source,
		announcer: announcer,
		cfg:       cfg,
		logger:    logger,
		tracker:   NewTracker(r, cfg.Tracker),
		done:      make(chan struct{}),
		subs:      make(map[chan State]struct{}),
	}
}

// Route returns the session's route
func (s *Session) Route() *route.Route {
	return s.route
}

// Run drives the polling loop until arrival, stop, or context cancellation
// (blocking, use goroutine)
func (s *Session) Run(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	defer close(s.done)

	s.logger.Info("session started",
		"session_id", s.ID,
		"steps", len(s.route.Steps),
		"total_distance_m", s.route.TotalDistanceMeters,
		"poll_interval", s.cfg.PollInterval,
		"source", s.source.Name(),
	)

	s.announce(Event{Kind: EventRouteStart, Text: s.route.Summary(), Priority: PriorityNormal})
	s.announce(Event{Kind: EventStepAdvance, Text: s.route.Steps[0].Instruction, Priority: PriorityNormal})

	s.mu.Lock()
	s.lastStatus = time.Now()
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logSummary()
			return ctx.Err()
		case <-ticker.C:
			if s.poll(ctx) {
				s.logSummary()
				return nil
			}
		}
	}
}

// poll runs one cycle; returns true when the session reached a terminal state
func (s *Session) poll(ctx context.Context) bool {
	fixCtx, cancel := context.WithTimeout(ctx, s.cfg.FixTimeout)
	fix, err := s.source.GetFix(fixCtx)
	cancel()

	s.mu.Lock()
	if s.stopped {
		// A fix that raced with Stop is discarded, never processed
		s.mu.Unlock()
		return true
	}
	s.stats.Polls++

	var (
		state  State
		events []Event
	)

	switch {
	case err != nil:
		s.stats.MissedFixes++
		state, events = s.tracker.MarkMiss()
		s.logger.Warn("fix unavailable", "session_id", s.ID, "error", err)
	case !fix.Fresh(s.cfg.Staleness):
		s.stats.StaleFixes++
		state, events = s.tracker.MarkMiss()
		s.logger.Warn("stale fix discarded", "session_id", s.ID, "age", fix.Age())
	default:
		s.stats.Updates++
		state, events = s.tracker.Update(fix)
		if ev, ok := s.progressStatus(state); ok {
			events = append(events, ev)
		}
		s.logger.Debug("fix processed",
			"session_id", s.ID,
			"phase", state.Phase,
			"step", state.CurrentStepIndex,
			"to_destination_m", state.DistanceToDestination,
		)
	}
	s.stats.Events += int64(len(events))
	s.mu.Unlock()

	for _, ev := range events {
		s.announce(ev)
	}
	s.notifySubscribers(state)

	return state.Phase == PhaseArrived
}

// progressStatus emits a distance-remaining update at most once per
// StatusInterval, and only while quietly underway. Caller holds s.mu.
func (s *Session) progressStatus(state State) (Event, bool) {
	if s.cfg.StatusInterval <= 0 || state.Phase != PhaseNavigating {
		return Event{}, false
	}
	if time.Since(s.lastStatus) < s.cfg.StatusInterval {
		return Event{}, false
	}

	s.lastStatus = time.Now()
	return Event{
		Kind:      EventStatus,
		Text:      fmt.Sprintf("%s to destination.", geo.FormatDistance(state.DistanceToDestination)),
		Priority:  PriorityNormal,
		StepIndex: state.CurrentStepIndex,
	}, true
}

func (s *Session) announce(ev Event) {
	if s.announcer != nil {
		s.announcer.Enqueue(ev)
	}
}

// State returns the latest tracker snapshot
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker.State()
}

// Stats returns session loop counters
func (s *Session) Stats() SessionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Subscribe returns a channel receiving a state snapshot after every cycle
func (s *Session) Subscribe() chan State {
	ch := make(chan State, 10)

	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber
func (s *Session) Unsubscribe(ch chan State) {
	s.subsMu.Lock()
	if _, exists := s.subs[ch]; exists {
		delete(s.subs, ch)
		close(ch)
	}
	s.subsMu.Unlock()
}

func (s *Session) notifySubscribers(state State) {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	for ch := range s.subs {
		select {
		case ch <- state:
		default:
			// Drop if subscriber is slow
		}
	}
}

// Stop terminates the session: the loop halts, queued announcements are
// cancelled, and any fix arriving afterwards is silently discarded.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	if s.announcer != nil {
		s.announcer.CancelAll()
	}

	s.subsMu.Lock()
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
	s.subsMu.Unlock()

	s.logger.Info("session stopped", "session_id", s.ID)
}

// Stopped reports whether Stop has been called
func (s *Session) Stopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

func (s *Session) logSummary() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.logger.Info("session loop ended",
		"session_id", s.ID,
		"phase", s.tracker.State().Phase,
		"polls", s.stats.Polls,
		"missed", s.stats.MissedFixes,
		"stale", s.stats.StaleFixes,
	)
}
