package logger

import "testing"

func TestNewDoesNotPanicAtAnyLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		l := New(level)
		l.Infow("test message", "level", level)
	}
}

func TestNewNopDiscardsOutput(t *testing.T) {
	l := NewNop()
	l.Infow("should not print anywhere")
}
