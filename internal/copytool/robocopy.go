package copytool

import (
	"bulkcopy/internal/taskfile"
)

type RobocopyTool struct{}

func (RobocopyTool) Name() string    { return "robocopy" }
func (RobocopyTool) Command() string { return "robocopy" }
func (RobocopyTool) JSONLog() bool   { return false }

// Success follows robocopy's exit-code convention: 0-7 indicate degrees of
// "copied/extra files", 8 and above indicate at least one failure. Negative
// codes mean the process never produced an exit code.
func (RobocopyTool) Success(exitCode int) bool { return exitCode >= 0 && exitCode < 8 }

func (RobocopyTool) BuildArgs(d taskfile.Descriptor) []string {
	args := []string{d.Source, d.Dest, "/E", "/R:2", "/W:5", "/NP"}
	return append(args, d.ExtraArgs...)
}
