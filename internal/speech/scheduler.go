package speech

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/hintnav/go-hint/internal/nav"
)

// SchedulerConfig configures the announcement queue
type SchedulerConfig struct {
	QueueSize int
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{QueueSize: 16}
}

// Scheduler serializes announcements through a single dispatch goroutine so
// utterances never overlap. Arrival and error events bypass the queue,
// cancelling whatever is currently playing. Repeat suppression for turn
// warnings is the tracker's bookkeeping, not re-derived here.
type Scheduler struct {
	output Output
	cfg    SchedulerConfig
	logger *slog.Logger

	queue  chan nav.Event
	urgent chan nav.Event

	cancel context.CancelFunc
	done   chan struct{}

	// Stats
	dispatched  atomic.Uint64
	dropped     atomic.Uint64
	speakErrors atomic.Uint64
}

// NewScheduler creates an announcement scheduler over the given output
func NewScheduler(output Output, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultSchedulerConfig().QueueSize
	}

	return &Scheduler{
		output: output,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan nav.Event, cfg.QueueSize),
		urgent: make(chan nav.Event, 4),
		done:   make(chan struct{}),
	}
}

// Run starts the dispatch loop (blocking, use goroutine)
func (s *Scheduler) Run(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	defer close(s.done)

	s.logger.Info("announcement scheduler started", "queue_size", s.cfg.QueueSize)

	for {
		// Urgent events always go first
		select {
		case ev := <-s.urgent:
			s.dispatch(ctx, ev)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			s.logger.Info("announcement scheduler stopped",
				"dispatched", s.dispatched.Load(),
				"dropped", s.dropped.Load(),
			)
			return
		case ev := <-s.urgent:
			s.dispatch(ctx, ev)
		case ev := <-s.queue:
			s.dispatch(ctx, ev)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, ev nav.Event) {
	if err := s.output.Speak(ctx, ev.Text); err != nil {
		// A failed announcement is dropped, not retried, so the loop
		// never falls behind the user's position.
		s.speakErrors.Add(1)
		s.logger.Warn("announcement failed", "kind", ev.Kind, "error", err)
		return
	}
	s.dispatched.Add(1)
	s.logger.Debug("announced", "kind", ev.Kind, "text", ev.Text)
}

// Enqueue adds an event to the announcement queue. Urgent events cancel the
// in-flight utterance and cut ahead of everything queued.
func (s *Scheduler) Enqueue(ev nav.Event) {
	if ev.Urgent() {
		s.drainQueue()
		s.output.Stop()
		select {
		case s.urgent <- ev:
		default:
			s.dropped.Add(1)
			s.logger.Warn("urgent announcement dropped", "kind", ev.Kind)
		}
		return
	}

	select {
	case s.queue <- ev:
	default:
		s.dropped.Add(1)
		s.logger.Warn("announcement queue full, dropping", "kind", ev.Kind)
	}
}

// CancelAll clears all pending announcements and stops any in-flight
// utterance. Used on user-initiated stop.
func (s *Scheduler) CancelAll() {
	s.drainQueue()
	for {
		select {
		case <-s.urgent:
			s.dropped.Add(1)
		default:
			s.output.Stop()
			return
		}
	}
}

func (s *Scheduler) drainQueue() {
	for {
		select {
		case <-s.queue:
			s.dropped.Add(1)
		default:
			return
		}
	}
}

// Close stops the dispatch loop and cancels everything pending
func (s *Scheduler) Close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.CancelAll()
}

// SchedulerStats contains scheduler counters
type SchedulerStats struct {
	Dispatched  uint64 `json:"dispatched"`
	Dropped     uint64 `json:"dropped"`
	SpeakErrors uint64 `json:"speak_errors"`
	Pending     int    `json:"pending"`
}

// GetStats returns scheduler counters
func (s *Scheduler) GetStats() SchedulerStats {
	return SchedulerStats{
		Dispatched:  s.dispatched.Load(),
		Dropped:     s.dropped.Load(),
		SpeakErrors: s.speakErrors.Load(),
		Pending:     len(s.queue) + len(s.urgent),
	}
}
