// Package report renders dispatcher progress and persists per-task results.
// Both surfaces are strictly best-effort: a slow console or a failing log
// directory never blocks or aborts the run.
package report

import (
	"fmt"
	"io"
	"sync"

	"bulkcopy/internal/dispatch"
)

const progressBuffer = 256

type progressEvent struct {
	admitted  bool
	index     int
	state     dispatch.TaskState
	launched  int
	completed int
	total     int
}

// Progress implements dispatch.Observer. Events are handed to a rendering
// goroutine through a buffered channel; when the channel is full the event
// is dropped rather than stalling the dispatcher.
type Progress struct {
	out    io.Writer
	events chan progressEvent

	closeOnce sync.Once
	done      chan struct{}
}

func NewProgress(out io.Writer) *Progress {
	p := &Progress{
		out:    out,
		events: make(chan progressEvent, progressBuffer),
		done:   make(chan struct{}),
	}
	go p.render()
	return p
}

func (p *Progress) TaskAdmitted(index, launched, total int) {
	p.post(progressEvent{admitted: true, index: index, launched: launched, total: total})
}

func (p *Progress) TaskFinalized(o dispatch.Outcome, completed, total int) {
	p.post(progressEvent{index: o.Index, state: o.State, completed: completed, total: total})
}

func (p *Progress) post(ev progressEvent) {
	select {
	case p.events <- ev:
	default:
		// Reporting is best effort; never block scheduling.
	}
}

// Close drains pending events and stops the renderer. Call after the run.
func (p *Progress) Close() {
	p.closeOnce.Do(func() {
		close(p.events)
		<-p.done
	})
}

func (p *Progress) render() {
	defer close(p.done)
	maxCompleted := 0
	for ev := range p.events {
		if ev.admitted {
			fmt.Fprintf(p.out, "[%d/%d] launched task %d\n", ev.launched, ev.total, ev.index)
			continue
		}
		// A reported completed count never regresses.
		if ev.completed > maxCompleted {
			maxCompleted = ev.completed
		}
		fmt.Fprintf(p.out, "[%d/%d] task %d %s\n", maxCompleted, ev.total, ev.index, ev.state)
	}
}
