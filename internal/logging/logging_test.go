package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		" info ":  slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"":        slog.LevelDebug,
	}
	for in, want := range cases {
		if got := levelFromString(in); got != want {
			t.Errorf("levelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestJSONFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := Component(NewWithOptions(Options{Level: "info", Format: "json", Output: &buf}), "fetch")
	logger.Debug("hidden")
	logger.Info("cache hit", "provider", "imdb")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["component"] != "fetch" || entry["provider"] != "imdb" || entry["msg"] != "cache hit" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestTextFormatDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithOptions(Options{Level: "warn", Output: &buf}).Warn("slow provider", "provider", "rt")
	if !strings.Contains(buf.String(), "provider=rt") {
		t.Fatalf("unexpected text output %q", buf.String())
	}
}

func TestNewNopDiscards(t *testing.T) {
	t.Parallel()

	if NewNop().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("nop logger must not be enabled")
	}
}
