package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"bulkcopy/internal/dispatch"
	"bulkcopy/internal/taskfile"
	"bulkcopy/internal/utils"
)

const summaryMessageLimit = 240

// Sink persists one structured JSONL line per finalized task into the run's
// log directory, keyed by the task's log id. Persistence failures go to the
// secondary error hook and never abort the run.
type Sink struct {
	dir   string
	descs map[int]taskfile.Descriptor
	errFn func(string)
}

// record is the on-disk shape of one finalized task.
type record struct {
	Time     time.Time `json:"time"`
	Index    int       `json:"index"`
	Source   string    `json:"source"`
	Dest     string    `json:"dest"`
	State    string    `json:"state"`
	ExitCode *int      `json:"exit_code,omitempty"`
	Message  string    `json:"message,omitempty"`
	Started  time.Time `json:"started_at,omitempty"`
	Finished time.Time `json:"finished_at,omitempty"`
}

func NewSink(dir string, descs []taskfile.Descriptor, errFn func(string)) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory %s: %w", dir, err)
	}
	if errFn == nil {
		errFn = func(string) {}
	}
	byIndex := make(map[int]taskfile.Descriptor, len(descs))
	for _, d := range descs {
		byIndex[d.Index] = d
	}
	return &Sink{dir: dir, descs: byIndex, errFn: errFn}, nil
}

// Persist appends the outcome to <dir>/<logID>.jsonl.
func (s *Sink) Persist(o dispatch.Outcome) {
	d, ok := s.descs[o.Index]
	if !ok {
		s.errFn(fmt.Sprintf("no descriptor for outcome index %d", o.Index))
		return
	}

	rec := record{
		Time:     time.Now(),
		Index:    o.Index,
		Source:   d.Source,
		Dest:     d.Dest,
		State:    o.State.String(),
		ExitCode: o.ExitCode,
		Message:  utils.SanitizeOutput(o.Message),
		Started:  o.StartedAt,
		Finished: o.FinishedAt,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		s.errFn(fmt.Sprintf("failed to encode outcome for task %d: %v", o.Index, err))
		return
	}

	path := filepath.Join(s.dir, d.LogID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		s.errFn(fmt.Sprintf("failed to open task log %s: %v", path, err))
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		s.errFn(fmt.Sprintf("failed to write task log %s: %v", path, err))
	}
}

// Summarize renders the end-of-run error report: every parse error followed
// by every non-Completed outcome, in index order.
func (s *Sink) Summarize(run *dispatch.Run, parseErrs []taskfile.ParseError) string {
	failures := run.Errors()
	var b strings.Builder

	fmt.Fprintf(&b, "run finished: %d task(s), %d completed, %d failed or skipped, %d malformed line(s), took %s\n",
		run.Total, run.Total-len(failures), len(failures), len(parseErrs),
		run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond))

	if len(parseErrs) == 0 && len(failures) == 0 {
		b.WriteString("no errors\n")
		return b.String()
	}

	for _, pe := range parseErrs {
		fmt.Fprintf(&b, "  parse: %s\n", pe.Error())
	}
	for _, o := range failures {
		d := s.descs[o.Index]
		detail := utils.SafeTruncate(utils.SanitizeOutput(o.Message), summaryMessageLimit)
		if o.ExitCode != nil {
			fmt.Fprintf(&b, "  task %d (%s -> %s): %s, exit code %d: %s\n",
				o.Index, d.Source, d.Dest, o.State, *o.ExitCode, detail)
			continue
		}
		fmt.Fprintf(&b, "  task %d (%s -> %s): %s: %s\n", o.Index, d.Source, d.Dest, o.State, detail)
	}
	return b.String()
}

// summaryDoc is the machine-readable aggregate for one run.
type summaryDoc struct {
	Total       int      `json:"total"`
	Completed   int      `json:"completed"`
	Failed      int      `json:"failed"`
	Skipped     int      `json:"skipped"`
	TimedOut    int      `json:"timed_out"`
	ParseErrors []string `json:"parse_errors,omitempty"`
	StartedAt   string   `json:"started_at"`
	EndedAt     string   `json:"ended_at"`
	Outcomes    []record `json:"outcomes"`
}

// WriteSummaryJSON emits the whole run as one JSON document.
func (s *Sink) WriteSummaryJSON(w io.Writer, run *dispatch.Run, parseErrs []taskfile.ParseError) error {
	doc := summaryDoc{
		Total:     run.Total,
		StartedAt: run.StartedAt.Format(time.RFC3339),
		EndedAt:   run.EndedAt.Format(time.RFC3339),
	}
	for _, pe := range parseErrs {
		doc.ParseErrors = append(doc.ParseErrors, pe.Error())
	}
	for _, o := range run.Outcomes {
		d := s.descs[o.Index]
		doc.Outcomes = append(doc.Outcomes, record{
			Index:    o.Index,
			Source:   d.Source,
			Dest:     d.Dest,
			State:    o.State.String(),
			ExitCode: o.ExitCode,
			Message:  utils.SanitizeOutput(o.Message),
			Started:  o.StartedAt,
			Finished: o.FinishedAt,
		})
		switch o.State {
		case dispatch.StateCompleted:
			doc.Completed++
		case dispatch.StateFailed:
			doc.Failed++
		case dispatch.StateSkipped:
			doc.Skipped++
		case dispatch.StateTimedOut:
			doc.TimedOut++
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
