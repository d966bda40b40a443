// Package config resolves runtime settings from flags, BULKCOPY_*
// environment variables and an optional config file, in that precedence.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMaxConcurrent bounds simultaneous copy-tool processes.
	DefaultMaxConcurrent = 5
	// DefaultTimeoutMinutes is the global wall-clock budget for one run.
	DefaultTimeoutMinutes = 20

	// MaxConcurrentLimit caps the worker pool so a typo cannot fork-bomb
	// the host.
	MaxConcurrentLimit = 100
)

// EnvFlagEnabled returns true when the environment variable exists and is
// not explicitly set to a falsey value ("0/false/no/off").
func EnvFlagEnabled(key string) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return false
	}
	val = strings.TrimSpace(strings.ToLower(val))
	switch val {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

func ParseBoolFlag(val string, defaultValue bool) bool {
	val = strings.TrimSpace(strings.ToLower(val))
	switch val {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// ResolveMaxConcurrent reads BULKCOPY_MAX_CONCURRENT. Invalid or missing
// values fall back to the default; the result is clamped to
// MaxConcurrentLimit.
func ResolveMaxConcurrent() int {
	raw := strings.TrimSpace(os.Getenv("BULKCOPY_MAX_CONCURRENT"))
	if raw == "" {
		return DefaultMaxConcurrent
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return DefaultMaxConcurrent
	}
	if value > MaxConcurrentLimit {
		return MaxConcurrentLimit
	}
	return value
}

// ResolveTimeout reads BULKCOPY_TIMEOUT_MINUTES.
func ResolveTimeout() time.Duration {
	raw := strings.TrimSpace(os.Getenv("BULKCOPY_TIMEOUT_MINUTES"))
	if raw == "" {
		return DefaultTimeoutMinutes * time.Minute
	}

	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return DefaultTimeoutMinutes * time.Minute
	}
	return time.Duration(value) * time.Minute
}
