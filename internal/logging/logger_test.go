package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWithWriterEmitsJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "production", "WARN")
	if err != nil {
		t.Fatalf("NewWithWriter failed: %v", err)
	}

	logger.Info().Msg("dropped")
	runLogger := ForRun(logger, "run-7", "strict")
	runLogger.Warn().Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("unexpected line count: got %d want 1 (%q)", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != serviceName || entry["run_id"] != "run-7" || entry["preset"] != "strict" || entry["message"] != "kept" {
		t.Fatalf("unexpected log entry: %+v", entry)
	}
}

func TestNewWithWriterDefaultsAndRejectsLevels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "local", "  ")
	if err != nil {
		t.Fatalf("blank level should default to info: %v", err)
	}
	logger.Debug().Msg("hidden")
	logger.Info().Msg("visible")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "visible") {
		t.Fatalf("unexpected console output: %q", out)
	}

	if _, err := NewWithWriter(&buf, "local", "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
