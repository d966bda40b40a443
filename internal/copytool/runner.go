package copytool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"bulkcopy/internal/dispatch"
	"bulkcopy/internal/parser"
	"bulkcopy/internal/taskfile"
)

const (
	toolLogLineLimit         = 2000
	toolTailLimit            = 8 * 1024
	defaultForceKillDelaySec = 10
)

// forceKillDelay is how long a cancelled process gets to exit after SIGTERM
// before it is killed. Seconds; tests shrink it via SetForceKillDelay.
var forceKillDelay atomic.Int32

func init() {
	forceKillDelay.Store(defaultForceKillDelaySec)
}

type processHandle interface {
	Signal(os.Signal) error
	Kill() error
}

type commandRunner interface {
	Start() error
	Wait() error
	StdoutPipe() (io.ReadCloser, error)
	StderrPipe() (io.ReadCloser, error)
	Process() processHandle
}

type realCmd struct {
	cmd *exec.Cmd
}

func (r *realCmd) Start() error { return r.cmd.Start() }
func (r *realCmd) Wait() error  { return r.cmd.Wait() }

func (r *realCmd) StdoutPipe() (io.ReadCloser, error) { return r.cmd.StdoutPipe() }
func (r *realCmd) StderrPipe() (io.ReadCloser, error) { return r.cmd.StderrPipe() }

func (r *realCmd) Process() processHandle {
	if r.cmd.Process == nil {
		return nil
	}
	return r.cmd.Process
}

var commandContext = exec.CommandContext

var newCommandRunner = func(ctx context.Context, name string, args ...string) commandRunner {
	cmd := commandContext(ctx, name, args...)
	// Cooperative stop: SIGTERM on cancel, hard kill once the wait delay
	// elapses.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return sendTermSignal(cmd.Process)
	}
	cmd.WaitDelay = time.Duration(forceKillDelay.Load()) * time.Second
	return &realCmd{cmd: cmd}
}

// Runner invokes one copy tool per descriptor and reduces its output to a
// dispatch.Result. It implements dispatch.Executor.
type Runner struct {
	tool Tool
}

func NewRunner(tool Tool) *Runner {
	return &Runner{tool: tool}
}

func (r *Runner) Execute(ctx context.Context, d taskfile.Descriptor) dispatch.Result {
	args := r.tool.BuildArgs(d)
	logInfoFn(fmt.Sprintf("task %d: %s %s", d.Index, r.tool.Command(), strings.Join(args, " ")))

	cmd := newCommandRunner(ctx, r.tool.Command(), args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return dispatch.Result{ExitCode: -1, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return dispatch.Result{ExitCode: -1, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return dispatch.Result{ExitCode: -1, Err: fmt.Errorf("failed to start %s: %w", r.tool.Command(), err)}
	}

	prefix := fmt.Sprintf("[%s] ", d.LogID)
	tail := &tailBuffer{limit: toolTailLimit}
	var stats parser.Stats

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		lw := newLogWriter(prefix, toolLogLineLimit)
		_, _ = io.Copy(lw, stdout)
		lw.Flush()
	}()
	go func() {
		defer wg.Done()
		tee := io.TeeReader(stderr, tail)
		if r.tool.JSONLog() {
			stats = parser.ParseJSONLogStream(tee, logWarnFn, nil)
			return
		}
		lw := newLogWriter(prefix, toolLogLineLimit)
		_, _ = io.Copy(lw, tee)
		lw.Flush()
	}()

	wg.Wait()
	waitErr := cmd.Wait()
	code := exitCode(waitErr)

	if ctx.Err() != nil {
		return dispatch.Result{ExitCode: code, Message: "cancelled", Err: ctx.Err()}
	}

	if !r.tool.Success(code) {
		msg := stats.LastError
		if msg == "" {
			msg = strings.TrimSpace(tail.String())
		}
		if msg == "" && waitErr != nil {
			msg = waitErr.Error()
		}
		return dispatch.Result{
			ExitCode: code,
			Message:  msg,
			Err:      fmt.Errorf("%s exited with code %d", r.tool.Name(), code),
		}
	}

	msg := "transfer completed"
	if r.tool.JSONLog() {
		msg = stats.Summary()
	}
	return dispatch.Result{ExitCode: code, Message: msg}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
