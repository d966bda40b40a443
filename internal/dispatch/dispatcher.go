// Package dispatch schedules transfer tasks onto a bounded worker pool with
// FIFO admission, a global wall-clock deadline and exactly-once outcome
// finalization.
package dispatch

import (
	"context"
	"errors"
	"os"
	"time"

	"bulkcopy/internal/taskfile"
)

const (
	DefaultMaxConcurrency = 5
	DefaultTimeout        = 20 * time.Minute
)

// Options configures one dispatcher.
type Options struct {
	MaxConcurrency int
	Timeout        time.Duration
	// Exists is the cheap precondition checked before a task consumes a
	// worker slot. Defaults to an os.Stat probe on the source.
	Exists   func(path string) bool
	Observer Observer
}

type Dispatcher struct {
	executor Executor
	opts     Options
}

func New(executor Executor, opts Options) *Dispatcher {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Exists == nil {
		opts.Exists = func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		}
	}
	return &Dispatcher{executor: executor, opts: opts}
}

// report travels from a worker goroutine back to the scheduling loop.
type report struct {
	pos int
	res Result
}

// Run executes descs with at most MaxConcurrency concurrent transfers.
// Admission is strictly FIFO by input order. Every descriptor ends in
// exactly one terminal Outcome: tasks running when the deadline fires are
// cancelled and finalized TimedOut, tasks never admitted are Skipped.
func (d *Dispatcher) Run(parent context.Context, descs []taskfile.Descriptor) *Run {
	run := &Run{
		Total:          len(descs),
		MaxConcurrency: d.opts.MaxConcurrency,
		Timeout:        d.opts.Timeout,
		Outcomes:       make([]Outcome, len(descs)),
		StartedAt:      time.Now(),
	}
	for i := range descs {
		run.Outcomes[i] = Outcome{Index: descs[i].Index, State: StatePending}
	}

	ctx, cancel := context.WithTimeout(parent, d.opts.Timeout)
	defer cancel()

	// Buffered to the task count so abandoned workers can always post
	// their late report without leaking.
	results := make(chan report, len(descs))

	var (
		next      int
		inFlight  int
		launched  int
		completed int
	)

	for {
		// Fill free slots in input order. The precondition runs here,
		// synchronously, so an invalid task never occupies capacity.
		for next < len(descs) && inFlight < d.opts.MaxConcurrency && ctx.Err() == nil {
			pos := next
			next++
			desc := descs[pos]

			if !d.opts.Exists(desc.Source) {
				completed++
				d.finalize(run, pos, StateSkipped, nil, "source not found: "+desc.Source, completed)
				continue
			}

			run.Outcomes[pos].State = StateRunning
			run.Outcomes[pos].StartedAt = time.Now()
			launched++
			inFlight++
			d.observeAdmitted(desc.Index, launched, run.Total)

			go func(pos int, desc taskfile.Descriptor) {
				results <- report{pos: pos, res: d.executor.Execute(ctx, desc)}
			}(pos, desc)
		}

		if next >= len(descs) && inFlight == 0 {
			break // normal end: pending empty, running empty
		}

		select {
		case r := <-results:
			inFlight--
			completed++
			d.finalizeResult(ctx, run, r, completed)

		case <-ctx.Done():
			// Deadline (or parent cancel): running tasks have been asked
			// to stop via ctx; do not wait for them. Pending tasks were
			// never started and must still appear in the outcome list.
			d.finalizeAbandoned(run, &completed)
			run.EndedAt = time.Now()
			return run
		}
	}

	run.EndedAt = time.Now()
	return run
}

func (d *Dispatcher) finalizeResult(ctx context.Context, run *Run, r report, completed int) {
	res := r.res
	switch {
	case res.Err != nil && ctx.Err() != nil &&
		(errors.Is(res.Err, context.DeadlineExceeded) || errors.Is(res.Err, context.Canceled)):
		// The executor was stopped by the global deadline, not by the
		// transfer itself.
		d.finalize(run, r.pos, StateTimedOut, nil, "run timed out", completed)
	case res.Err != nil:
		msg := res.Err.Error()
		if res.Message != "" {
			msg = res.Message
		}
		d.finalize(run, r.pos, StateFailed, &res.ExitCode, msg, completed)
	default:
		d.finalize(run, r.pos, StateCompleted, &res.ExitCode, res.Message, completed)
	}
}

// finalizeAbandoned closes out every non-terminal task on the timeout path.
func (d *Dispatcher) finalizeAbandoned(run *Run, completed *int) {
	for pos := range run.Outcomes {
		switch run.Outcomes[pos].State {
		case StateRunning:
			*completed++
			d.finalize(run, pos, StateTimedOut, nil, "run timed out", *completed)
		case StatePending:
			*completed++
			d.finalize(run, pos, StateSkipped, nil, "run timed out", *completed)
		}
	}
}

// finalize transitions one outcome into a terminal state. A task that is
// already terminal never transitions again.
func (d *Dispatcher) finalize(run *Run, pos int, state TaskState, exitCode *int, message string, completed int) {
	o := &run.Outcomes[pos]
	if o.State.Terminal() {
		return
	}
	o.State = state
	o.Message = message
	o.FinishedAt = time.Now()
	if exitCode != nil {
		code := *exitCode
		o.ExitCode = &code
	}
	d.observeFinalized(*o, completed, run.Total)
}

func (d *Dispatcher) observeAdmitted(index, launched, total int) {
	if d.opts.Observer != nil {
		d.opts.Observer.TaskAdmitted(index, launched, total)
	}
}

func (d *Dispatcher) observeFinalized(o Outcome, completed, total int) {
	if d.opts.Observer != nil {
		d.opts.Observer.TaskFinalized(o, completed, total)
	}
}
