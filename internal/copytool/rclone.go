package copytool

import (
	"bulkcopy/internal/taskfile"
)

type RcloneTool struct{}

func (RcloneTool) Name() string    { return "rclone" }
func (RcloneTool) Command() string { return "rclone" }
func (RcloneTool) JSONLog() bool   { return true }

func (RcloneTool) Success(exitCode int) bool { return exitCode == 0 }

func (RcloneTool) BuildArgs(d taskfile.Descriptor) []string {
	args := []string{"copy", d.Source, d.Dest,
		"--use-json-log",
		"--log-level", "INFO",
	}
	return append(args, d.ExtraArgs...)
}
