package screenrec

import (
	"errors"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json", ""} {
		log, err := NewLogger("debug", format)
		if err != nil {
			t.Fatalf("NewLogger(debug, %q) failed: %v", format, err)
		}
		if !log.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("format %q: debug not enabled", format)
		}
	}

	log, err := NewLogger("warn", "json")
	if err != nil {
		t.Fatalf("NewLogger(warn) failed: %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info enabled at warn level")
	}
}

func TestNewLoggerInvalid(t *testing.T) {
	if _, err := NewLogger("loud", "console"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad level = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewLogger("info", "xml"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad format = %v, want ErrInvalidConfig", err)
	}
}
