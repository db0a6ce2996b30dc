package sync

// State is the lifecycle of one change during apply.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// ProgressEvent is the sole runtime feedback channel from the executor
// to any front-end. Events for one job arrive in emission order.
type ProgressEvent struct {
	ChangeID string
	State    State
	Message  string
	Terminal bool // set on the job's final event
}

// sendProgress delivers an event without blocking execution. A slow or
// absent consumer drops events rather than stalling the sync.
func sendProgress(progress chan<- ProgressEvent, event ProgressEvent) {
	if progress == nil {
		return
	}
	select {
	case progress <- event:
	default:
	}
}
