// Package nav implements the live navigation state machine and session loop
package nav

import (
	"fmt"
	"time"

	"github.com/hintnav/go-hint/internal/geo"
	"github.com/hintnav/go-hint/internal/position"
	"github.com/hintnav/go-hint/internal/route"
)

// Phase is the tracker's life-cycle state
type Phase string

const (
	PhaseNavigating Phase = "navigating"
	PhaseArrived    Phase = "arrived"
	PhaseLost       Phase = "lost"
)

// TrackerConfig holds the distance thresholds driving phase transitions
type TrackerConfig struct {
	ArrivalRadiusMeters  float64
	ApproachRadiusMeters float64
	ImminentRadiusMeters float64
	LostAfterMisses      int
}

// DefaultTrackerConfig returns sensible defaults
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		ArrivalRadiusMeters:  20,
		ApproachRadiusMeters: 100,
		ImminentRadiusMeters: 50,
		LostAfterMisses:      3,
	}
}

// State is a snapshot of tracking progress returned from every update
type State struct {
	Phase                 Phase     `json:"phase"`
	CurrentStepIndex      int       `json:"current_step_index"`
	StepCount             int       `json:"step_count"`
	CurrentInstruction    string    `json:"current_instruction"`
	NextInstruction       string    `json:"next_instruction,omitempty"`
	DistanceToDestination float64   `json:"distance_to_destination_m"`
	DistanceToNextTurn    float64   `json:"distance_to_next_turn_m,omitempty"`
	UpdatedAt             time.Time `json:"updated_at,omitempty"`
}

// Tracker reconciles position fixes against a route, advancing the current
// step, detecting arrival and emitting announcement events. It is a pure
// state machine: the session loop owns concurrency and staleness filtering,
// so Update is only ever called with fresh fixes from one goroutine.
type Tracker struct {
	route *route.Route
	cfg   TrackerConfig

	state  State
	warned map[int]bool // step index -> turn warning already issued
	misses int          // consecutive missing or stale fixes
}

// NewTracker creates a tracker positioned at the first step of the route
func NewTracker(r *route.Route, cfg TrackerConfig) *Tracker {
	return &Tracker{
		route: r,
		cfg:   cfg,
		state: State{
			Phase:              PhaseNavigating,
			CurrentStepIndex:   0,
			StepCount:          len(r.Steps),
			CurrentInstruction: r.Steps[0].Instruction,
			NextInstruction:    nextInstruction(r, 0),
		},
		warned: make(map[int]bool),
	}
}

// State returns the latest snapshot
func (t *Tracker) State() State {
	return t.state
}

// Update consumes one fresh position fix and returns the updated state plus
// any announcement events emitted this cycle. After arrival every further
// call is an idempotent no-op.
func (t *Tracker) Update(fix position.Fix) (State, []Event) {
	if t.state.Phase == PhaseArrived {
		return t.state, nil
	}

	var events []Event

	if t.state.Phase == PhaseLost {
		t.state.Phase = PhaseNavigating
		events = append(events, Event{
			Kind:     EventStatus,
			Text:     "GPS signal reacquired. Resuming navigation.",
			Priority: PriorityNormal,
		})
	}
	t.misses = 0

	loc := fix.Coordinate
	t.state.DistanceToDestination = geo.Distance(loc, t.route.Destination)
	t.state.UpdatedAt = fix.CapturedAt

	if t.state.DistanceToDestination < t.cfg.ArrivalRadiusMeters {
		t.state.Phase = PhaseArrived
		t.state.CurrentStepIndex = t.route.LastIndex()
		t.state.CurrentInstruction = t.route.Steps[t.route.LastIndex()].Instruction
		t.state.NextInstruction = ""
		t.state.DistanceToNextTurn = 0

		events = append(events, Event{
			Kind:      EventArrival,
			Text:      "You have arrived at your destination!",
			Priority:  PriorityUrgent,
			StepIndex: t.route.LastIndex(),
		})
		return t.state, events
	}

	// Step index only ever moves forward within a session so a noisy fix
	// cannot snap navigation back to an already-passed step.
	candidate := t.route.NearestStep(loc)
	if candidate > t.state.CurrentStepIndex {
		t.state.CurrentStepIndex = candidate
		step := t.route.Steps[candidate]
		t.state.CurrentInstruction = step.Instruction
		t.state.NextInstruction = nextInstruction(t.route, candidate)

		events = append(events, Event{
			Kind:      EventStepAdvance,
			Text:      step.Instruction,
			Priority:  PriorityNormal,
			StepIndex: candidate,
		})
	}

	if next := t.state.CurrentStepIndex + 1; next <= t.route.LastIndex() {
		t.state.DistanceToNextTurn = geo.Distance(loc, t.route.Steps[next].Anchor)

		if t.state.DistanceToNextTurn < t.cfg.ApproachRadiusMeters && !t.warned[next] {
			t.warned[next] = true
			events = append(events, Event{
				Kind:      EventTurnApproaching,
				Text:      t.turnWarning(next),
				Priority:  PriorityNormal,
				StepIndex: next,
			})
		}
	} else {
		t.state.DistanceToNextTurn = 0
	}

	return t.state, events
}

// MarkMiss records a cycle with a missing or stale fix. After the configured
// number of consecutive misses the tracker enters the lost phase; the next
// fresh fix brings it back.
func (t *Tracker) MarkMiss() (State, []Event) {
	if t.state.Phase == PhaseArrived {
		return t.state, nil
	}

	t.misses++
	if t.state.Phase != PhaseLost && t.misses >= t.cfg.LostAfterMisses {
		t.state.Phase = PhaseLost
		return t.state, []Event{{
			Kind:     EventStatus,
			Text:     "GPS signal lost. Please wait while I reacquire your position.",
			Priority: PriorityNormal,
		}}
	}

	return t.state, nil
}

func (t *Tracker) turnWarning(stepIndex int) string {
	dist := t.state.DistanceToNextTurn
	instruction := t.route.Steps[stepIndex].Instruction

	if dist < t.cfg.ImminentRadiusMeters {
		return fmt.Sprintf("Coming up: %s", instruction)
	}
	return fmt.Sprintf("In %s: %s", geo.FormatDistance(dist), instruction)
}

func nextInstruction(r *route.Route, current int) string {
	if current+1 <= r.LastIndex() {
		return r.Steps[current+1].Instruction
	}
	return ""
}
