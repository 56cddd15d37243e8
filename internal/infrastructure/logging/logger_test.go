package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/meridianlab/fluidcore/internal/infrastructure/config"
)

func TestJSONEntriesCarryDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "0.3.0", &buf)

	log.Info("run accepted", "run_id", "run-7b1f", "commands", 24)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	want := map[string]any{
		"service": "fluidcore",
		"version": "0.3.0",
		"msg":     "run accepted",
		"run_id":  "run-7b1f",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Errorf("entry[%q] = %v, want %v", key, entry[key], value)
		}
	}
	if entry["commands"] != float64(24) {
		t.Errorf("entry[commands] = %v, want 24", entry["commands"])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, "dev", &buf)

	log.Info("simulator ready")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("text format produced JSON: %s", out)
	}
	if !strings.Contains(out, "simulator ready") || !strings.Contains(out, "service=fluidcore") {
		t.Errorf("unexpected text output: %s", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(config.LoggingConfig{Level: "warn", Format: "json"}, "dev", &buf)

	log.Debug("per-command trace")
	log.Info("routine status")
	if buf.Len() != 0 {
		t.Errorf("entries below warn were emitted: %s", buf.String())
	}

	log.Warn("tip capacity advisory")
	if buf.Len() == 0 {
		t.Error("warn entry was filtered out")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestWithAddsComponentTag(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "dev", &buf)

	busLog := log.With("component", "mqtt")
	if busLog == log {
		t.Fatal("With() returned the parent logger")
	}
	busLog.Info("connected")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["component"] != "mqtt" {
		t.Errorf("entry[component] = %v, want mqtt", entry["component"])
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}
