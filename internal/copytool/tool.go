// Package copytool abstracts the external bulk-copy programs the dispatcher
// drives. Each tool supplies its executable, its argument list for one
// transfer descriptor and its own exit-code success convention.
package copytool

import (
	"fmt"
	"strings"

	"bulkcopy/internal/taskfile"
)

// Tool is the contract for one copy program.
type Tool interface {
	Name() string
	Command() string
	BuildArgs(d taskfile.Descriptor) []string
	// Success interprets the program's exit code; robocopy for example
	// treats codes below 8 as success.
	Success(exitCode int) bool
	// JSONLog reports whether the tool writes a JSON log stream to stderr
	// that the runner should reduce to transfer stats.
	JSONLog() bool
}

var (
	logWarnFn = func(string) {}
	logInfoFn = func(string) {}
)

// SetLogFuncs configures optional logging hooks used by the runner.
// Callers can safely pass nil to disable a hook.
func SetLogFuncs(warnFn, infoFn func(string)) {
	if warnFn != nil {
		logWarnFn = warnFn
	} else {
		logWarnFn = func(string) {}
	}
	if infoFn != nil {
		logInfoFn = infoFn
	} else {
		logInfoFn = func(string) {}
	}
}

var registry = map[string]Tool{
	"rclone":   RcloneTool{},
	"robocopy": RobocopyTool{},
	"rsync":    RsyncTool{},
}

// Registry exposes the available tools. Intended for internal inspection/tests.
func Registry() map[string]Tool {
	return registry
}

// Select resolves a tool by name; the empty name selects rclone.
func Select(name string) (Tool, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = "rclone"
	}
	if tool, ok := registry[key]; ok {
		return tool, nil
	}
	return nil, fmt.Errorf("unsupported copy tool %q", name)
}
