package copytool

import (
	"bulkcopy/internal/taskfile"
)

type RsyncTool struct{}

func (RsyncTool) Name() string    { return "rsync" }
func (RsyncTool) Command() string { return "rsync" }
func (RsyncTool) JSONLog() bool   { return false }

func (RsyncTool) Success(exitCode int) bool { return exitCode == 0 }

func (RsyncTool) BuildArgs(d taskfile.Descriptor) []string {
	args := []string{"-a", "--stats"}
	args = append(args, d.ExtraArgs...)
	return append(args, d.Source, d.Dest)
}
