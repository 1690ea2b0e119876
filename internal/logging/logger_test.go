package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/danielpatrickdp/stopgate/internal/config"
)

func TestNewLevels(t *testing.T) {
	l, err := New(config.Log{Level: "warn"}, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info should be disabled at warn")
	}

	l, err = New(config.Log{Level: "warn"}, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("verbose should enable debug")
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(config.Log{Level: "loud"}, false); err == nil {
		t.Fatal("expected error")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected nop logger")
	}
}
