package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, slog.LevelInfo, FormatText)
	if err != nil {
		t.Fatal(err)
	}

	logger.Debug("hidden")
	logger.Info("entered state", "state", "failsafe")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record leaked at info level:\n%s", out)
	}
	if !strings.Contains(out, "entered state") || !strings.Contains(out, "failsafe") {
		t.Errorf("missing record:\n%s", out)
	}
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, slog.LevelDebug, FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	logger.Warn("write failed", "channel", "esc")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("not json: %v\n%s", err, buf.String())
	}
	if rec["msg"] != "write failed" || rec["channel"] != "esc" || rec["level"] != "warn" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, slog.LevelInfo, "xml"); err == nil {
		t.Error("expected error")
	}
}

func TestZapLevel(t *testing.T) {
	tests := []struct {
		in   slog.Level
		want string
	}{
		{slog.LevelDebug, "debug"},
		{slog.LevelInfo, "info"},
		{slog.LevelWarn, "warn"},
		{slog.LevelError, "error"},
	}
	for _, tt := range tests {
		if got := zapLevel(tt.in).String(); got != tt.want {
			t.Errorf("zapLevel(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}
