package dispatch

import (
	"context"
	"time"

	"bulkcopy/internal/taskfile"
)

// Outcome is the terminal record for one task. It is created when the run
// starts, finalized exactly once, and immutable afterwards. ExitCode is nil
// for tasks that never produced one (Skipped, abandoned TimedOut).
type Outcome struct {
	Index      int
	State      TaskState
	ExitCode   *int
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Run aggregates every Outcome of one dispatcher invocation. It is owned by
// the dispatcher until Run() returns and read-only afterwards.
type Run struct {
	Total          int
	MaxConcurrency int
	Timeout        time.Duration
	Outcomes       []Outcome
	StartedAt      time.Time
	EndedAt        time.Time
}

// AllCompleted reports whether every task reached Completed.
func (r *Run) AllCompleted() bool {
	for i := range r.Outcomes {
		if r.Outcomes[i].State != StateCompleted {
			return false
		}
	}
	return true
}

// Errors returns every non-Completed outcome, in index order.
func (r *Run) Errors() []Outcome {
	var out []Outcome
	for i := range r.Outcomes {
		if r.Outcomes[i].State != StateCompleted {
			out = append(out, r.Outcomes[i])
		}
	}
	return out
}

// Result is what an executor reports for one task attempt. Err is nil only
// when the transfer tool signalled success.
type Result struct {
	ExitCode int
	Message  string
	Err      error
}

// Executor performs one transfer. It may run for hours and must honor ctx
// cancellation as its cooperative stop signal.
type Executor interface {
	Execute(ctx context.Context, d taskfile.Descriptor) Result
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, d taskfile.Descriptor) Result

func (f ExecutorFunc) Execute(ctx context.Context, d taskfile.Descriptor) Result {
	return f(ctx, d)
}

// Observer receives dispatcher lifecycle events. Implementations must not
// block; the dispatcher treats observation as best effort.
type Observer interface {
	TaskAdmitted(index, launched, total int)
	TaskFinalized(o Outcome, completed, total int)
}
