package logger

import "testing"

func TestNew(t *testing.T) {
	log, err := New("debug", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !log.Core().Enabled(-1) {
		t.Error("debug level should be enabled")
	}

	log, err = New("warn", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.Core().Enabled(0) {
		t.Error("info should be disabled at warn")
	}

	if _, err := New("chatty", false); err == nil {
		t.Error("expected error for unknown level")
	}
}
