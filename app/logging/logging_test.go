package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func restoreDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestSetupJSONWhenNotTerminal(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	closer := setup(&buf, false, Options{})
	defer closer.Close()

	slog.Info("Task completed", "subscription", "example")
	slog.Debug("hidden")

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("Expected a single JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "Task completed" || entry["subscription"] != "example" {
		t.Errorf("Unexpected entry: %v", entry)
	}
}

func TestSetupTextOnTerminalWithDebug(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer

	closer := setup(&buf, true, Options{Debug: true})
	defer closer.Close()

	slog.Debug("Cycle started", "reason", "tick")

	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") || !strings.Contains(out, "reason=tick") {
		t.Errorf("Expected debug text output, got %q", out)
	}
}

func TestSetupWritesLogFile(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "engawa.log")

	closer := setup(&buf, true, Options{LogFile: path})
	slog.Warn("Library refresh failed", "targets", 2)
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected log file to exist: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"Library refresh failed"`) {
		t.Errorf("Expected JSON record in file, got %q", data)
	}
	if !strings.Contains(buf.String(), "Library refresh failed") {
		t.Errorf("Expected record on the console too, got %q", buf.String())
	}
}
