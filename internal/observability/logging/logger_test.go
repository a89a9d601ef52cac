package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewWritesServiceAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "health-ai-api", "info")
	logger.Info("pipeline_started", "record_id", "rec-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "health-ai-api" {
		t.Fatalf("unexpected service: %v", entry["service"])
	}
	if entry["msg"] != "pipeline_started" || entry["record_id"] != "rec-1" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "svc", "warn")
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("expected warn to be written")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestForRequestAddsRunAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := ForRequest(New(&buf, "svc", "debug"), "rec-7", "req-7")
	logger.Debug("parsing_poll")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["record_id"] != "rec-7" || entry["request_id"] != "req-7" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}
