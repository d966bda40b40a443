// Package taskfile parses newline-delimited transfer task lists into
// immutable descriptors. Each record is tab-delimited into 2-3 fields:
// source, destination and an optional whitespace-separated extra-argument
// string passed through to the copy tool.
package taskfile

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Descriptor is one source->destination transfer unit. Index is the 1-based
// position among successfully parsed records and stays stable for the run.
type Descriptor struct {
	Index     int
	Source    string
	Dest      string
	ExtraArgs []string
	LogID     string
}

// ParseError records a malformed input line. It never aborts the parse.
type ParseError struct {
	Line   int
	Raw    string
	Reason string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Raw)
}

// Parse splits raw lines into descriptors. Blank and #-comment lines are
// skipped. Lines with fewer than two tab-delimited fields yield a ParseError
// and no descriptor. Substrings in strip are removed from source and
// destination, in listed order, every occurrence.
func Parse(lines []string, strip []string) ([]Descriptor, []ParseError) {
	var (
		descs  []Descriptor
		errs   []ParseError
		logIDs = make(map[string]int)
	)

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		cleaned := fields[:0]
		for _, f := range fields {
			if f = strings.TrimSpace(f); f != "" {
				cleaned = append(cleaned, f)
			}
		}
		if len(cleaned) < 2 {
			errs = append(errs, ParseError{Line: i + 1, Raw: line, Reason: "malformed"})
			continue
		}

		d := Descriptor{
			Index:  len(descs) + 1,
			Source: stripAll(cleaned[0], strip),
			Dest:   stripAll(cleaned[1], strip),
		}
		if len(cleaned) > 2 {
			d.ExtraArgs = strings.Fields(cleaned[2])
		}

		d.LogID = logID(d.Dest)
		if _, dup := logIDs[d.LogID]; dup {
			d.LogID = fmt.Sprintf("%s-%d", d.LogID, d.Index)
		}
		logIDs[d.LogID] = d.Index

		descs = append(descs, d)
	}

	return descs, errs
}

// LoadFile reads a task list from disk. A missing or unreadable file is the
// only fatal condition in the whole parse path.
func LoadFile(path string, strip []string) ([]Descriptor, []ParseError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open task file %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read task file %s: %w", path, err)
	}

	descs, errs := Parse(lines, strip)
	return descs, errs, nil
}

func stripAll(s string, strip []string) string {
	for _, sub := range strip {
		if sub == "" {
			continue
		}
		s = strings.ReplaceAll(s, sub, "")
	}
	return s
}

// logID maps a destination path to a filesystem-safe log key. Reserved and
// separator characters collapse to underscores so re-runs against the same
// destination land in the same log.
func logID(dest string) string {
	var b strings.Builder
	b.Grow(len(dest))
	lastUnderscore := false
	for _, r := range dest {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			// Runs of separators collapse so \\host\share and /host/share
			// map to the same key.
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	id := strings.Trim(b.String(), "_")
	if id == "" {
		return "task"
	}
	return id
}
