package logger

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CleanupStats summarizes one orphan-log sweep.
type CleanupStats struct {
	Scanned      int
	Deleted      int
	Kept         int
	Errors       int
	DeletedFiles []string
	KeptFiles    []string
}

var (
	processRunningCheck = isProcessRunning
	processStartTimeFn  = getProcessStartTime
	removeLogFileFn     = os.Remove
	globLogFiles        = filepath.Glob
	fileStatFn          = os.Lstat
)

// CleanupOldLogs removes wrapper logs whose owning process no longer runs.
// A running pid whose process started after the log file was written is
// treated as pid reuse and the file is removed too.
func CleanupOldLogs() (CleanupStats, error) {
	return cleanupOldLogs()
}

func cleanupOldLogs() (CleanupStats, error) {
	var stats CleanupStats

	pattern := filepath.Join(os.TempDir(), LogPrefix+"-*.log")
	matches, err := globLogFiles(pattern)
	if err != nil {
		return stats, err
	}

	self := os.Getpid()
	for _, path := range matches {
		pid, ok := pidFromLogName(filepath.Base(path))
		if !ok {
			continue
		}
		stats.Scanned++

		if pid == self {
			stats.Kept++
			stats.KeptFiles = append(stats.KeptFiles, path)
			continue
		}

		if processRunningCheck(pid) && !pidReused(pid, path) {
			stats.Kept++
			stats.KeptFiles = append(stats.KeptFiles, path)
			continue
		}

		if err := removeLogFileFn(path); err != nil {
			stats.Errors++
			continue
		}
		stats.Deleted++
		stats.DeletedFiles = append(stats.DeletedFiles, path)
	}

	return stats, nil
}

// pidReused reports whether the running pid cannot be the one that wrote the
// file: a process started after the file was last written is a different
// incarnation of the pid.
func pidReused(pid int, path string) bool {
	start := processStartTimeFn(pid)
	if start.IsZero() {
		return false
	}
	info, err := fileStatFn(path)
	if err != nil {
		return false
	}
	return start.After(info.ModTime())
}

// pidFromLogName extracts the pid from "bulkcopy-<pid>[-suffix].log".
func pidFromLogName(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, LogPrefix+"-")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, ".log")
	if !ok {
		return 0, false
	}
	if i := strings.IndexByte(rest, '-'); i >= 0 {
		rest = rest[:i]
	}
	pid, err := strconv.Atoi(rest)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
