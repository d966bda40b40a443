// Package parser consumes the JSON log stream a copy tool writes to stderr
// (rclone --use-json-log emits one JSON object per line) and reduces it to
// per-task transfer statistics.
package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

const (
	logLineReaderSize   = 64 * 1024
	logLineMaxBytes     = 1 * 1024 * 1024
	logLinePreviewBytes = 256
)

// LogEvent is one line of the tool's JSON log output.
type LogEvent struct {
	Level  string         `json:"level"`
	Msg    string         `json:"msg"`
	Object string         `json:"object,omitempty"`
	Stats  *transferStats `json:"stats,omitempty"`
}

// transferStats mirrors rclone's periodic stats block.
type transferStats struct {
	Bytes     int64   `json:"bytes"`
	Errors    int     `json:"errors"`
	Transfers int     `json:"transfers"`
	LastError string  `json:"lastError"`
	Elapsed   float64 `json:"elapsedTime"`
}

// Stats is the reduction of one task's whole log stream.
type Stats struct {
	Events    int
	Errors    int
	LastError string
	Bytes     int64
	Transfers int
}

// Summary renders the stats for a completion message.
func (s Stats) Summary() string {
	return fmt.Sprintf("transferred %d object(s), %d bytes, %d error(s)", s.Transfers, s.Bytes, s.Errors)
}

// ParseJSONLogStream reads the stream line by line until EOF. Overlong lines
// are skipped with a truncated preview; non-JSON lines are ignored since
// tools mix plain output into stderr. warnFn and infoFn may be nil.
func ParseJSONLogStream(r io.Reader, warnFn, infoFn func(string)) Stats {
	if warnFn == nil {
		warnFn = func(string) {}
	}
	if infoFn == nil {
		infoFn = func(string) {}
	}

	reader := bufio.NewReaderSize(r, logLineReaderSize)
	var stats Stats

	for {
		line, tooLong, err := readLineWithLimit(reader, logLineMaxBytes, logLinePreviewBytes)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				warnFn("read log stream error: " + err.Error())
			}
			break
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if tooLong {
			warnFn(fmt.Sprintf("skipped overlong log line (> %d bytes): %s", logLineMaxBytes, TruncateBytes(line, 100)))
			continue
		}
		if line[0] != '{' {
			continue
		}

		var event LogEvent
		if err := json.Unmarshal(line, &event); err != nil {
			warnFn(fmt.Sprintf("unparsable log line: %s", TruncateBytes(line, 100)))
			continue
		}
		stats.Events++

		if event.Level == "error" && event.Msg != "" {
			stats.Errors++
			stats.LastError = event.Msg
			if event.Object != "" {
				stats.LastError = event.Object + ": " + event.Msg
			}
			infoFn(fmt.Sprintf("tool error event #%d: %s", stats.Events, TruncateBytes([]byte(stats.LastError), 200)))
			continue
		}

		if event.Stats != nil {
			// Stats blocks are cumulative; the last one wins.
			stats.Bytes = event.Stats.Bytes
			stats.Transfers = event.Stats.Transfers
			if event.Stats.Errors > stats.Errors {
				stats.Errors = event.Stats.Errors
			}
			if event.Stats.LastError != "" {
				stats.LastError = event.Stats.LastError
			}
		}
	}

	infoFn(fmt.Sprintf("log stream done: events=%d errors=%d bytes=%d", stats.Events, stats.Errors, stats.Bytes))
	return stats
}

// readLineWithLimit reads one line, flagging lines longer than maxBytes and
// returning only a preview of them.
func readLineWithLimit(r *bufio.Reader, maxBytes, previewBytes int) (line []byte, tooLong bool, err error) {
	part, isPrefix, err := r.ReadLine()
	if err != nil {
		return nil, false, err
	}
	if !isPrefix {
		if len(part) > maxBytes {
			return part[:min(len(part), previewBytes)], true, nil
		}
		return part, false, nil
	}

	buf := append([]byte(nil), part...)
	for isPrefix {
		part, isPrefix, err = r.ReadLine()
		if err != nil {
			return nil, tooLong, err
		}
		if tooLong {
			continue
		}
		if len(buf)+len(part) > maxBytes {
			tooLong = true
			continue
		}
		buf = append(buf, part...)
	}

	if tooLong {
		return buf[:min(len(buf), previewBytes)], true, nil
	}
	return buf, false, nil
}

// TruncateBytes renders at most maxLen bytes of b, marking the cut.
func TruncateBytes(b []byte, maxLen int) string {
	if len(b) <= maxLen {
		return string(b)
	}
	if maxLen < 0 {
		return ""
	}
	return string(b[:maxLen]) + "..."
}
