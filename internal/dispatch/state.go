package dispatch

// TaskState tracks one task through its lifecycle:
// Pending -> Running -> {Completed | Failed | Skipped | TimedOut}.
// Skipped is reached without ever entering Running when the precondition
// check fails or the run times out before admission.
type TaskState int32

const (
	StatePending TaskState = iota
	StateRunning
	StateCompleted
	StateSkipped
	StateFailed
	StateTimedOut
)

func (s TaskState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether a task in this state can never transition again.
func (s TaskState) Terminal() bool {
	switch s {
	case StateCompleted, StateSkipped, StateFailed, StateTimedOut:
		return true
	default:
		return false
	}
}
