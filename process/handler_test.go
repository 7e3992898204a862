package process_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/kbukum/cmdkit/logger"
	"github.com/kbukum/cmdkit/process"
)

func jsonLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.NewWithWriter(buf, &logger.Config{Level: "debug", Format: "json"}, "test")
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	h := process.LogHandler(jsonLogger(&buf), zerolog.WarnLevel, "rsync: ")
	h.HandleLine("")
	h.HandleLine("vanished file")

	lines := logLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected empty lines to be skipped, got %v", lines)
	}
	if lines[0]["level"] != "warn" || lines[0]["message"] != "rsync: vanished file" {
		t.Errorf("unexpected entry %v", lines[0])
	}
}

func TestDefaultHandlersLog(t *testing.T) {
	var buf bytes.Buffer
	cmd, err := process.New("sh",
		process.WithArgs("-c", "echo to-out; echo to-err >&2"),
		process.WithLogger(jsonLogger(&buf)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cmd.Execute(t.Context(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	levels := map[string]string{}
	for _, l := range logLines(t, &buf) {
		if msg, ok := l["message"].(string); ok {
			levels[msg] = l["level"].(string)
		}
	}
	if levels["to-out"] != "info" {
		t.Errorf("expected stdout at info, got %q", levels["to-out"])
	}
	if levels["to-err"] != "warn" {
		t.Errorf("expected stderr at warn, got %q", levels["to-err"])
	}
}

func TestPrintHandler(t *testing.T) {
	var buf bytes.Buffer
	h := process.PrintHandler(&buf, "> ", nil)
	h.HandleLine("one")
	h.HandleLine("")
	h.HandleLine("two")

	if buf.String() != "> one\n> two\n" {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestPrintHandlerColor(t *testing.T) {
	var buf bytes.Buffer
	c := color.New(color.FgRed)
	c.EnableColor()
	process.PrintHandler(&buf, "", c).HandleLine("alert")

	out := buf.String()
	if !strings.Contains(out, "alert") || !strings.Contains(out, "\x1b[31m") {
		t.Errorf("expected red output, got %q", out)
	}
}

func TestMultiHandlerAndCollector(t *testing.T) {
	a, b := &process.Collector{}, &process.Collector{}
	h := process.MultiHandler(a, b, process.Discard)
	h.HandleLine("x")
	h.HandleLine("y")

	if a.String() != "x\ny" || b.String() != "x\ny" {
		t.Errorf("expected both collectors to receive lines, got %q / %q", a.String(), b.String())
	}
	lines := a.Lines()
	lines[0] = "mutated"
	if a.Lines()[0] != "x" {
		t.Error("Lines must return a copy")
	}
}

func TestLogRetryObserver(t *testing.T) {
	var buf bytes.Buffer
	cmd := newCommand(t, "true")
	obs := process.LogRetryObserver(jsonLogger(&buf))

	obs.ObserveRetry(process.RetryContext{
		Command: cmd,
		Args:    []string{"a"},
		Attempt: 1,
		Err:     errors.New("exit 1"),
	})

	lines := logLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 entry, got %v", lines)
	}
	got := lines[0]
	if got["level"] != "warn" || got[logger.FieldCommand] != "true" || got[logger.FieldAttempt] != float64(1) {
		t.Errorf("unexpected entry %v", got)
	}
	if got["error"] != "exit 1" {
		t.Errorf("expected error field, got %v", got["error"])
	}
}
