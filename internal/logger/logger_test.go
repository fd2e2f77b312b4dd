package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	t.Run("json outside development", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWithWriter(&buf, "info", "prod")
		l.Debug("hidden")
		l.Info("booking created", slog.Uint64("booking_id", 7))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 1 {
			t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
			t.Fatalf("expected json output: %v", err)
		}
		if rec["msg"] != "booking created" || rec["booking_id"] != float64(7) {
			t.Fatalf("unexpected record %v", rec)
		}
	})

	t.Run("text in development", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(&buf, "debug", "dev").Debug("seat locked")
		if !strings.Contains(buf.String(), "msg=\"seat locked\"") {
			t.Fatalf("expected text output, got %q", buf.String())
		}
	})
}
