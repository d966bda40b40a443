// Package logger provides the per-process wrapper log: an asynchronous
// zerolog file writer named after the process id, plus cleanup of logs left
// behind by dead processes.
package logger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogPrefix is the file name prefix for every wrapper log.
const LogPrefix = "bulkcopy"

const (
	logChanBuffer    = 1024
	maxLogSuffixLen  = 40
	recentErrorScanN = 4096
)

type logMsg struct {
	level zerolog.Level
	text  string
	flush chan struct{}
}

// Logger writes timestamped JSON lines to TMPDIR/bulkcopy-<pid>[-suffix].log
// through a single worker goroutine, so call sites never block on disk.
type Logger struct {
	path string
	file *os.File
	zl   zerolog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan logMsg
	done   chan struct{}
}

func NewLogger() (*Logger, error) {
	return NewLoggerWithSuffix("")
}

// NewLoggerWithSuffix creates the process log file. A non-empty suffix lands
// between the pid and the extension, for subprocesses that need their own
// file.
func NewLoggerWithSuffix(suffix string) (*Logger, error) {
	name := fmt.Sprintf("%s-%d.log", LogPrefix, os.Getpid())
	if suffix = SanitizeLogSuffix(suffix); suffix != "" {
		name = fmt.Sprintf("%s-%d-%s.log", LogPrefix, os.Getpid(), suffix)
	}
	path := filepath.Join(os.TempDir(), name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file %s: %w", path, err)
	}

	l := &Logger{
		path: path,
		file: file,
		zl:   zerolog.New(file).With().Timestamp().Logger(),
		ch:   make(chan logMsg, logChanBuffer),
		done: make(chan struct{}),
	}
	go l.worker()
	return l, nil
}

func (l *Logger) worker() {
	defer close(l.done)
	for m := range l.ch {
		if m.flush != nil {
			close(m.flush)
			continue
		}
		l.zl.WithLevel(m.level).Msg(m.text)
	}
}

func (l *Logger) post(level zerolog.Level, text string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	l.ch <- logMsg{level: level, text: text}
}

func (l *Logger) Debug(msg string) { l.post(zerolog.DebugLevel, msg) }
func (l *Logger) Info(msg string)  { l.post(zerolog.InfoLevel, msg) }
func (l *Logger) Warn(msg string)  { l.post(zerolog.WarnLevel, msg) }
func (l *Logger) Error(msg string) { l.post(zerolog.ErrorLevel, msg) }

// Path returns the log file location.
func (l *Logger) Path() string { return l.path }

// Flush blocks until every entry posted before it reached the file.
func (l *Logger) Flush() {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return
	}
	ack := make(chan struct{})
	l.ch <- logMsg{flush: ack}
	l.mu.RUnlock()
	<-ack
}

// Close stops the worker and closes the file. The file itself is kept on
// disk for debugging; startup cleanup removes it once the process is gone.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.ch)
	l.mu.Unlock()

	<-l.done
	return l.file.Close()
}

// RemoveLogFile deletes the log file from disk.
func (l *Logger) RemoveLogFile() error {
	return removeLogFileFn(l.path)
}

// ExtractRecentErrors returns up to n of the newest error-level lines, for
// the exit banner on failed runs.
func (l *Logger) ExtractRecentErrors(n int) []string {
	if n <= 0 {
		return nil
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var recent []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, recentErrorScanN), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, `"level":"error"`) {
			continue
		}
		recent = append(recent, line)
		if len(recent) > n {
			recent = recent[1:]
		}
	}
	return recent
}

// SanitizeLogSuffix keeps a suffix filesystem-safe: alphanumerics, dash and
// underscore only, length-capped.
func SanitizeLogSuffix(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxLogSuffixLen {
			break
		}
	}
	return b.String()
}
