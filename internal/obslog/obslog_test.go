package obslog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestDefaultFormatIsText(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)
	logger.Info("hello", "pid", 42)

	out := buf.String()
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "pid=42") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, WithFormat(FormatJSON))
	logger.Warn("recording truncated", "frame_index", 5)

	out := buf.String()
	if !strings.Contains(out, `"msg":"recording truncated"`) {
		t.Errorf("unexpected JSON output: %q", out)
	}
}

func TestLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, WithLevel(slog.LevelWarn))
	logger.Info("should not appear")
	logger.Warn("should appear")

	out := buf.String()
	if strings.Contains(out, "should not appear") {
		t.Errorf("info message leaked through warn-level filter: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestNilWriterDiscardsOutput(t *testing.T) {
	logger := New(nil)
	logger.Info("discarded")
}
