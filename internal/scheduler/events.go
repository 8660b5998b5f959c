package scheduler

import (
	"time"

	"github.com/zenweave/zen/internal/model"
)

// EventKind tags the variant of a SchedulerEvent.
type EventKind string

const (
	EventTaskDispatched EventKind = "task_dispatched"
	EventTaskCompleted  EventKind = "task_completed"
	EventTaskFailed     EventKind = "task_failed"
	EventTaskBlocked    EventKind = "task_blocked"
	EventDrained        EventKind = "drained"

	// EventStalled is emitted instead of EventDrained when Run stops
	// because every remaining task was cascade-blocked by an upstream
	// failure, rather than because the DAG reached true completion.
	EventStalled EventKind = "stalled"
)

// Event is emitted on the scheduler's event channel as tasks move
// through dispatch, completion, and failure. Delivery is lossy-allowed:
// a slow consumer may miss events, but events for a single workflow are
// always sent in order.
type Event struct {
	Kind      EventKind
	TaskID    model.ID
	Reason    string
	Timestamp time.Time
}
