package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvFlagEnabled(t *testing.T) {
	tests := []struct {
		value string
		set   bool
		want  bool
	}{
		{"", false, false},
		{"", true, false},
		{"0", true, false},
		{"false", true, false},
		{"OFF", true, false},
		{"1", true, true},
		{"true", true, true},
		{"anything", true, true},
	}
	for _, tt := range tests {
		key := "BULKCOPY_TEST_FLAG"
		if tt.set {
			t.Setenv(key, tt.value)
		} else {
			os.Unsetenv(key)
		}
		if got := EnvFlagEnabled(key); got != tt.want {
			t.Fatalf("EnvFlagEnabled(%q=%q, set=%t) = %t, want %t", key, tt.value, tt.set, got, tt.want)
		}
	}
}

func TestParseBoolFlag(t *testing.T) {
	if !ParseBoolFlag("yes", false) {
		t.Fatal("ParseBoolFlag(yes) = false")
	}
	if ParseBoolFlag("no", true) {
		t.Fatal("ParseBoolFlag(no) = true")
	}
	if !ParseBoolFlag("garbage", true) {
		t.Fatal("ParseBoolFlag should fall back to the default")
	}
}

func TestResolveMaxConcurrent(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", DefaultMaxConcurrent},
		{"abc", DefaultMaxConcurrent},
		{"0", DefaultMaxConcurrent},
		{"-3", DefaultMaxConcurrent},
		{"7", 7},
		{"500", MaxConcurrentLimit},
	}
	for _, tt := range tests {
		t.Setenv("BULKCOPY_MAX_CONCURRENT", tt.value)
		if got := ResolveMaxConcurrent(); got != tt.want {
			t.Fatalf("ResolveMaxConcurrent(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestResolveTimeout(t *testing.T) {
	t.Setenv("BULKCOPY_TIMEOUT_MINUTES", "")
	if got := ResolveTimeout(); got != DefaultTimeoutMinutes*time.Minute {
		t.Fatalf("default timeout = %s", got)
	}

	t.Setenv("BULKCOPY_TIMEOUT_MINUTES", "45")
	if got := ResolveTimeout(); got != 45*time.Minute {
		t.Fatalf("ResolveTimeout(45) = %s", got)
	}

	t.Setenv("BULKCOPY_TIMEOUT_MINUTES", "junk")
	if got := ResolveTimeout(); got != DefaultTimeoutMinutes*time.Minute {
		t.Fatalf("invalid timeout should fall back, got %s", got)
	}
}

func TestNewViperReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("tool: rsync\nmax-concurrent: 9\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	v, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	if got := v.GetString("tool"); got != "rsync" {
		t.Fatalf("tool = %q, want rsync", got)
	}
	if got := v.GetInt("max-concurrent"); got != 9 {
		t.Fatalf("max-concurrent = %d, want 9", got)
	}
}

func TestNewViperMissingExplicitFileFails(t *testing.T) {
	if _, err := NewViper(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for an explicitly named missing config file")
	}
}

func TestNewViperEnvOverride(t *testing.T) {
	t.Setenv("BULKCOPY_TOOL", "robocopy")
	v, err := NewViper("")
	if err != nil {
		t.Fatalf("NewViper() error = %v", err)
	}
	if got := v.GetString("tool"); got != "robocopy" {
		t.Fatalf("tool = %q, want robocopy from env", got)
	}
}
