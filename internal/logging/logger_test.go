package logging

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		l, err := New(level)
		if err != nil {
			t.Fatalf("New(%q) returned error: %v", level, err)
		}
		if l == nil {
			t.Fatalf("New(%q) returned nil logger", level)
		}
	}
}

func TestNewFileWritesAndRotationDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resilience.log")

	l := NewFile("info", path, Rotation{})
	l.Info("hello", zap.String("component", "test"))
	l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected log output in file")
	}
}

func TestGlobalSwap(t *testing.T) {
	orig := Global()
	defer SetGlobal(orig)

	l := zap.NewNop()
	SetGlobal(l)
	if Global() != l {
		t.Error("expected global logger to be replaced")
	}

	// Wrappers must not panic with the nop logger installed.
	Info("info")
	Warn("warn")
	Error("error")
	Debug("debug")
	Sync()
}
