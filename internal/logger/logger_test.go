package logger

import (
	"testing"

	"eventsync/internal/config"
)

func TestNew_UnknownLevelFallsBackToInfo(t *testing.T) {
	l, err := New(config.LogConfig{Level: "chatty", Encoding: "json"}, "test")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if l.Core().Enabled(-1) {
		t.Fatalf("debug should be disabled")
	}
	if !l.Core().Enabled(0) {
		t.Fatalf("info should be enabled")
	}
}

func TestComponent_NilLogger(t *testing.T) {
	if Component(nil, "x") == nil {
		t.Fatalf("expected nop logger")
	}
}
