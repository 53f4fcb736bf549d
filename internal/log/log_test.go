package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestInit_Levels(t *testing.T) {
	var stderr bytes.Buffer
	Init(Options{Stderr: &stderr})

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	output := stderr.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("debug/info should not appear in non-verbose mode: %q", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("warn/error should appear: %q", output)
	}
	if Enabled(slog.LevelDebug) {
		t.Error("debug should be disabled in non-verbose mode")
	}
}

func TestInit_VerboseJSON(t *testing.T) {
	var stderr bytes.Buffer
	Init(Options{Verbose: true, JSONFormat: true, Stderr: &stderr})

	Debug("debug message", "key", "value")

	output := stderr.String()
	if !strings.Contains(output, `"msg":"debug message"`) {
		t.Errorf("expected JSON debug record, got %q", output)
	}
	if !strings.Contains(output, `"key":"value"`) {
		t.Errorf("expected attribute in JSON record, got %q", output)
	}
}

func TestSetOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	With("component", "test").Info("hello")

	if !strings.Contains(buf.String(), "component=test") {
		t.Errorf("expected attribute in output, got %q", buf.String())
	}
}

func TestNewLogger_DoesNotReplaceGlobal(t *testing.T) {
	var global, local bytes.Buffer
	SetOutput(&global)

	l := NewLogger(Options{Verbose: true, Stderr: &local})
	l.Info("local only")

	if strings.Contains(global.String(), "local only") {
		t.Error("NewLogger output leaked into the global logger")
	}
	if !strings.Contains(local.String(), "local only") {
		t.Errorf("expected local output, got %q", local.String())
	}
}
