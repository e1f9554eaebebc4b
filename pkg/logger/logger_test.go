package logger

import "testing"

func TestNewDoesNotPanic(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		l := New(level)
		if l == nil {
			t.Fatalf("New(%q) returned nil", level)
		}
		l.Debug("debug message", "level", level)
		l.Info("info message", "level", level)
	}
}

func TestNopLoggerIsSilent(t *testing.T) {
	l := NewNop()
	l.Info("should go nowhere")
	l.Error("also nowhere", "key", "value")
}
