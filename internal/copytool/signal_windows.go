//go:build windows
// +build windows

package copytool

// sendTermSignal falls back to a hard kill on Windows, which has no SIGTERM
// delivery for arbitrary processes.
func sendTermSignal(proc processHandle) error {
	if proc == nil {
		return nil
	}
	return proc.Kill()
}
