package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/mdobak/go-xerrors"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestErrorsCarryTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug)

	logger.Error("plain", slog.Any("error", errors.New("boom")))
	if !strings.Contains(buf.String(), "error.msg=boom") {
		t.Errorf("Expected error message group, got %q", buf.String())
	}
	if strings.Contains(buf.String(), "trace") {
		t.Errorf("Plain errors have no trace, got %q", buf.String())
	}

	buf.Reset()
	logger.Error("wrapped", slog.Any("error", xerrors.New(errors.New("boom"))))
	if !strings.Contains(buf.String(), "error.trace=") {
		t.Errorf("Expected stack trace, got %q", buf.String())
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("Info must be filtered at warn level, got %q", buf.String())
	}
}
