package logutil

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseSlogLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range cases {
		got, err := parseSlogLevel(in)
		if err != nil {
			t.Fatalf("parseSlogLevel(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("parseSlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := parseSlogLevel("loud"); err == nil {
		t.Fatalf("parseSlogLevel(loud) error = nil")
	}
}

func TestNewLoggerJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger, err := newLoggerFromConfig(&buf, loggerConfig{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("newLoggerFromConfig() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("relay_answer", "chars", 3)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1 (%q)", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if rec["msg"] != "relay_answer" || rec["chars"] != float64(3) {
		t.Fatalf("record mismatch: %v", rec)
	}
}

func TestNewLoggerUnknownFormat(t *testing.T) {
	t.Parallel()
	if _, err := newLoggerFromConfig(&bytes.Buffer{}, loggerConfig{Format: "xml"}); err == nil {
		t.Fatalf("newLoggerFromConfig(xml) error = nil")
	}
}
