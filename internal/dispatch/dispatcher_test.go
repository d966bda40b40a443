package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bulkcopy/internal/taskfile"
)

func descriptors(n int) []taskfile.Descriptor {
	descs := make([]taskfile.Descriptor, n)
	for i := range descs {
		descs[i] = taskfile.Descriptor{
			Index:  i + 1,
			Source: "src",
			Dest:   "dst",
			LogID:  "dst",
		}
	}
	return descs
}

func TestRunSingleTaskCompletes(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, d taskfile.Descriptor) Result {
		return Result{ExitCode: 0, Message: "copied"}
	})
	d := New(exec, Options{
		MaxConcurrency: 1,
		Timeout:        time.Hour,
		Exists:         func(string) bool { return true },
	})

	descs, errs := taskfile.Parse([]string{"a/src\tb/dst"}, nil)
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}

	run := d.Run(context.Background(), descs)

	if len(run.Outcomes) != 1 {
		t.Fatalf("outcome count = %d, want 1", len(run.Outcomes))
	}
	o := run.Outcomes[0]
	if o.State != StateCompleted {
		t.Fatalf("state = %s, want completed", o.State)
	}
	if o.Index != 1 {
		t.Fatalf("index = %d, want 1", o.Index)
	}
	if o.ExitCode == nil || *o.ExitCode != 0 {
		t.Fatalf("exit code = %v, want 0", o.ExitCode)
	}
	if !run.AllCompleted() {
		t.Fatal("AllCompleted() = false, want true")
	}
	if run.EndedAt.Before(run.StartedAt) {
		t.Fatal("EndedAt before StartedAt")
	}
}

func TestRunEveryTaskGetsExactlyOneOutcome(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, d taskfile.Descriptor) Result {
		return Result{}
	})
	d := New(exec, Options{
		MaxConcurrency: 3,
		Timeout:        time.Hour,
		Exists:         func(string) bool { return true },
	})

	run := d.Run(context.Background(), descriptors(17))

	if len(run.Outcomes) != 17 {
		t.Fatalf("outcome count = %d, want 17", len(run.Outcomes))
	}
	seen := make(map[int]bool)
	for _, o := range run.Outcomes {
		if !o.State.Terminal() {
			t.Fatalf("task %d left in non-terminal state %s", o.Index, o.State)
		}
		if seen[o.Index] {
			t.Fatalf("index %d appears twice", o.Index)
		}
		seen[o.Index] = true
	}
	for i := 1; i <= 17; i++ {
		if !seen[i] {
			t.Fatalf("index %d missing from outcomes", i)
		}
	}
}

func TestRunNeverExceedsMaxConcurrency(t *testing.T) {
	const bound = 4

	var current, peak atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, d taskfile.Descriptor) Result {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return Result{}
	})

	d := New(exec, Options{
		MaxConcurrency: bound,
		Timeout:        time.Hour,
		Exists:         func(string) bool { return true },
	})
	run := d.Run(context.Background(), descriptors(30))

	if got := peak.Load(); got > bound {
		t.Fatalf("peak concurrency = %d, want <= %d", got, bound)
	}
	if !run.AllCompleted() {
		t.Fatal("expected all tasks completed")
	}
}

func TestRunAdmissionIsFIFO(t *testing.T) {
	var mu sync.Mutex
	var order []int

	exec := ExecutorFunc(func(ctx context.Context, d taskfile.Descriptor) Result {
		mu.Lock()
		order = append(order, d.Index)
		mu.Unlock()
		return Result{}
	})

	// One slot forces strictly serial admission, making order observable.
	d := New(exec, Options{
		MaxConcurrency: 1,
		Timeout:        time.Hour,
		Exists:         func(string) bool { return true },
	})
	d.Run(context.Background(), descriptors(10))

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 10 {
		t.Fatalf("executed %d tasks, want 10", len(order))
	}
	for i, idx := range order {
		if idx != i+1 {
			t.Fatalf("admission order %v is not FIFO", order)
		}
	}
}

func TestRunFailedExitCodeCaptured(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, d taskfile.Descriptor) Result {
		if d.Index == 2 {
			return Result{ExitCode: 8, Message: "disk full", Err: errors.New("rclone exited with code 8")}
		}
		return Result{}
	})
	d := New(exec, Options{
		MaxConcurrency: 2,
		Timeout:        time.Hour,
		Exists:         func(string) bool { return true },
	})

	run := d.Run(context.Background(), descriptors(3))

	o := run.Outcomes[1]
	if o.State != StateFailed {
		t.Fatalf("state = %s, want failed", o.State)
	}
	if o.ExitCode == nil || *o.ExitCode != 8 {
		t.Fatalf("exit code = %v, want 8", o.ExitCode)
	}
	if o.Message != "disk full" {
		t.Fatalf("message = %q, want raw tool message", o.Message)
	}
	if run.AllCompleted() {
		t.Fatal("AllCompleted() = true with a failed task")
	}
	if errs := run.Errors(); len(errs) != 1 || errs[0].Index != 2 {
		t.Fatalf("Errors() = %+v, want only index 2", errs)
	}
}

func TestRunPreconditionSkipsWithoutSlot(t *testing.T) {
	var executed atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, d taskfile.Descriptor) Result {
		executed.Add(1)
		return Result{}
	})

	descs := descriptors(3)
	descs[1].Source = "missing"

	d := New(exec, Options{
		MaxConcurrency: 1,
		Timeout:        time.Hour,
		Exists:         func(path string) bool { return path != "missing" },
	})
	run := d.Run(context.Background(), descs)

	if got := executed.Load(); got != 2 {
		t.Fatalf("executor invoked %d times, want 2", got)
	}
	o := run.Outcomes[1]
	if o.State != StateSkipped {
		t.Fatalf("state = %s, want skipped", o.State)
	}
	if o.ExitCode != nil {
		t.Fatalf("skipped task has exit code %d", *o.ExitCode)
	}
	if run.Outcomes[0].State != StateCompleted || run.Outcomes[2].State != StateCompleted {
		t.Fatal("valid tasks should still complete")
	}
}

func TestRunTimeoutFinalizesEveryTask(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, d taskfile.Descriptor) Result {
		if d.Index == 1 {
			return Result{ExitCode: 0, Message: "fast"}
		}
		// Cooperative executor: block until cancelled.
		<-ctx.Done()
		return Result{Err: ctx.Err()}
	})

	d := New(exec, Options{
		MaxConcurrency: 2,
		Timeout:        300 * time.Millisecond,
		Exists:         func(string) bool { return true },
	})
	run := d.Run(context.Background(), descriptors(4))

	if len(run.Outcomes) != 4 {
		t.Fatalf("outcome count = %d, want 4", len(run.Outcomes))
	}
	if run.Outcomes[0].State != StateCompleted {
		t.Fatalf("task 1 state = %s, want completed", run.Outcomes[0].State)
	}
	for _, pos := range []int{1, 2} {
		o := run.Outcomes[pos]
		if o.State != StateTimedOut {
			t.Fatalf("task %d state = %s, want timed_out", o.Index, o.State)
		}
		if o.ExitCode != nil {
			t.Fatalf("timed out task %d has exit code %d", o.Index, *o.ExitCode)
		}
	}
	o := run.Outcomes[3]
	if o.State != StateSkipped {
		t.Fatalf("never-admitted task state = %s, want skipped", o.State)
	}
	if o.Message != "run timed out" {
		t.Fatalf("skip reason = %q, want \"run timed out\"", o.Message)
	}
}

func TestRunTimeoutDoesNotWaitForStuckExecutor(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	exec := ExecutorFunc(func(ctx context.Context, d taskfile.Descriptor) Result {
		// Ignores cancellation entirely.
		<-release
		return Result{}
	})

	d := New(exec, Options{
		MaxConcurrency: 1,
		Timeout:        100 * time.Millisecond,
		Exists:         func(string) bool { return true },
	})

	done := make(chan *Run, 1)
	go func() { done <- d.Run(context.Background(), descriptors(1)) }()

	select {
	case run := <-done:
		if run.Outcomes[0].State != StateTimedOut {
			t.Fatalf("state = %s, want timed_out", run.Outcomes[0].State)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after timeout with a stuck executor")
	}
}

func TestRunParentCancelBehavesLikeTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	exec := ExecutorFunc(func(ctx context.Context, d taskfile.Descriptor) Result {
		cancel()
		<-ctx.Done()
		return Result{Err: ctx.Err()}
	})

	d := New(exec, Options{
		MaxConcurrency: 1,
		Timeout:        time.Hour,
		Exists:         func(string) bool { return true },
	})
	run := d.Run(ctx, descriptors(2))

	if run.Outcomes[0].State != StateTimedOut {
		t.Fatalf("task 1 state = %s, want timed_out", run.Outcomes[0].State)
	}
	if run.Outcomes[1].State != StateSkipped {
		t.Fatalf("task 2 state = %s, want skipped", run.Outcomes[1].State)
	}
}

type recordingObserver struct {
	mu        sync.Mutex
	admitted  []int
	finalized []int
	completed []int
}

func (r *recordingObserver) TaskAdmitted(index, launched, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admitted = append(r.admitted, index)
}

func (r *recordingObserver) TaskFinalized(o Outcome, completed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = append(r.finalized, o.Index)
	r.completed = append(r.completed, completed)
}

func TestRunObserverSeesEveryEvent(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, d taskfile.Descriptor) Result {
		return Result{}
	})
	obs := &recordingObserver{}
	d := New(exec, Options{
		MaxConcurrency: 2,
		Timeout:        time.Hour,
		Exists:         func(string) bool { return true },
		Observer:       obs,
	})

	d.Run(context.Background(), descriptors(6))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.admitted) != 6 {
		t.Fatalf("admitted events = %d, want 6", len(obs.admitted))
	}
	if len(obs.finalized) != 6 {
		t.Fatalf("finalized events = %d, want 6", len(obs.finalized))
	}
	// The completed counter reported with finalization never regresses.
	for i := 1; i < len(obs.completed); i++ {
		if obs.completed[i] < obs.completed[i-1] {
			t.Fatalf("completed counter regressed: %v", obs.completed)
		}
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	d := New(ExecutorFunc(func(ctx context.Context, _ taskfile.Descriptor) Result {
		return Result{}
	}), Options{})

	if d.opts.MaxConcurrency != DefaultMaxConcurrency {
		t.Fatalf("default max concurrency = %d, want %d", d.opts.MaxConcurrency, DefaultMaxConcurrency)
	}
	if d.opts.Timeout != DefaultTimeout {
		t.Fatalf("default timeout = %s, want %s", d.opts.Timeout, DefaultTimeout)
	}
	if d.opts.Exists == nil {
		t.Fatal("default precondition not installed")
	}
}

func TestTaskStateStrings(t *testing.T) {
	cases := map[TaskState]string{
		StatePending:   "pending",
		StateRunning:   "running",
		StateCompleted: "completed",
		StateSkipped:   "skipped",
		StateFailed:    "failed",
		StateTimedOut:  "timed_out",
		TaskState(99):  "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("TaskState(%d).String() = %q, want %q", state, got, want)
		}
	}
	if StateRunning.Terminal() || StatePending.Terminal() {
		t.Fatal("pending/running must not be terminal")
	}
	if !StateCompleted.Terminal() || !StateTimedOut.Terminal() {
		t.Fatal("completed/timed_out must be terminal")
	}
}
