package nav

// EventKind identifies the type of announcement event
type EventKind string

const (
	EventRouteStart      EventKind = "route_start"
	EventStepAdvance     EventKind = "step_advance"
	EventTurnApproaching EventKind = "turn_approaching"
	EventArrival         EventKind = "arrival"
	EventError           EventKind = "error"
	EventStatus          EventKind = "status"
)

// Announcement priorities. Urgent events cut the queue and cancel any
// in-flight utterance.
const (
	PriorityNormal = 0
	PriorityUrgent = 1
)

// Event is a transient announcement intent produced by the tracker and
// consumed by the scheduler within one update cycle.
type Event struct {
	Kind      EventKind `json:"kind"`
	Text      string    `json:"text"`
	Priority  int       `json:"priority"`
	StepIndex int       `json:"step_index"`
}

// Urgent reports whether the event bypasses the announcement queue
func (e Event) Urgent() bool {
	return e.Kind == EventArrival || e.Kind == EventError
}

// Announcer serializes spoken announcements. Implemented by the speech
// scheduler; the tracker and session only see this contract.
type Announcer interface {
	Enqueue(Event)
	CancelAll()
}
