package app

import (
	"fmt"
	"os"
	"sync"
)

var cleanupWG sync.WaitGroup

// scheduleStartupCleanup sweeps logs left behind by dead processes without
// delaying the run itself.
func scheduleStartupCleanup() {
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		stats, err := cleanupOldLogs()
		if err != nil {
			logWarn("startup log cleanup failed: " + err.Error())
			return
		}
		if stats.Deleted > 0 || stats.Errors > 0 {
			logInfo(fmt.Sprintf("startup log cleanup: deleted %d, kept %d, errors %d",
				stats.Deleted, stats.Kept, stats.Errors))
		}
	}()
}

// runCleanupHook blocks until a scheduled startup cleanup has finished, so
// the process never exits mid-sweep.
func runCleanupHook() {
	cleanupWG.Wait()
}

// runCleanupMode is the explicit `cleanup` subcommand / --cleanup flag.
func runCleanupMode() int {
	stats, err := cleanupOldLogs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: log cleanup failed: %v\n", err)
		return 1
	}

	fmt.Printf("cleanup: scanned %d log file(s), deleted %d, kept %d, errors %d\n",
		stats.Scanned, stats.Deleted, stats.Kept, stats.Errors)
	for _, path := range stats.DeletedFiles {
		fmt.Printf("  deleted %s\n", path)
	}
	if stats.Errors > 0 {
		return 1
	}
	return 0
}
