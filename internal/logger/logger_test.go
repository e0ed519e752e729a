package logger

import (
	"testing"
)

func TestSanitize_RedactsSecrets(t *testing.T) {
	got := sanitize([]any{"token", "abc", "user_id", "42", "API_KEY", "k", "dangling"})
	want := []any{"token", "[REDACTED]", "user_id", "42", "API_KEY", "[REDACTED]", "dangling"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSanitize_Empty(t *testing.T) {
	if got := sanitize(nil); len(got) != 0 {
		t.Errorf("sanitize(nil) = %v", got)
	}
}

func TestNew_Modes(t *testing.T) {
	for _, mode := range []string{"dev", "prod", ""} {
		l, err := New(mode)
		if err != nil {
			t.Fatalf("New(%q) error: %v", mode, err)
		}
		l.Named("test").Info("hello", "k", "v")
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.With("a", 1).Warn("discarded")
	l.Sync()
}
