package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{
		Level:       level,
		Format:      "json",
		Output:      &buf,
		ServiceName: "media-factory-test",
	}), &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	line := strings.TrimSpace(strings.Split(buf.String(), "\n")[0])
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("failed to decode log line %q: %v", line, err)
	}
	return entry
}

func TestLoggerOutput(t *testing.T) {
	log, buf := newBufferLogger("debug")
	log.Info("render started", "scenes", 3)

	entry := decodeLine(t, buf)
	if entry["msg"] != "render started" {
		t.Errorf("expected msg 'render started', got %v", entry["msg"])
	}
	if entry["service"] != "media-factory-test" {
		t.Errorf("expected service attribute, got %v", entry["service"])
	}
	if entry["scenes"] != float64(3) {
		t.Errorf("expected scenes=3, got %v", entry["scenes"])
	}
	if ts, ok := entry["time"].(string); !ok || !strings.HasSuffix(ts, "Z") {
		t.Errorf("expected UTC RFC3339 time, got %v", entry["time"])
	}
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		level     string
		logFn     func(l *Logger)
		shouldLog bool
	}{
		{"info", func(l *Logger) { l.Debug("d") }, false},
		{"info", func(l *Logger) { l.Info("i") }, true},
		{"warn", func(l *Logger) { l.Info("i") }, false},
		{"warn", func(l *Logger) { l.Error("e") }, true},
		{"debug", func(l *Logger) { l.Debug("d") }, true},
	}

	for _, tt := range tests {
		log, buf := newBufferLogger(tt.level)
		tt.logFn(log)
		if got := buf.Len() > 0; got != tt.shouldLog {
			t.Errorf("level %s: expected shouldLog=%v, got %v", tt.level, tt.shouldLog, got)
		}
	}
}

func TestWithAttributes(t *testing.T) {
	tests := []struct {
		name  string
		build func(l *Logger) *Logger
		key   string
		value string
	}{
		{"job id", func(l *Logger) *Logger { return l.WithJobID("job-456") }, "job_id", "job-456"},
		{"component", func(l *Logger) *Logger { return l.WithComponent("renderer") }, "component", "renderer"},
		{"stage", func(l *Logger) *Logger { return l.WithStage("mux") }, "stage", "mux"},
		{"error", func(l *Logger) *Logger { return l.WithError(context.DeadlineExceeded) }, "error", "context deadline exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, buf := newBufferLogger("info")
			tt.build(log).Info("test")

			entry := decodeLine(t, buf)
			if entry[tt.key] != tt.value {
				t.Errorf("expected %s=%q, got %v", tt.key, tt.value, entry[tt.key])
			}
		})
	}
}

func TestWithErrorNil(t *testing.T) {
	log, _ := newBufferLogger("info")
	if log.WithError(nil) != log {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestFromContext(t *testing.T) {
	log, buf := newBufferLogger("info")

	ctx := ContextWithRequestID(context.Background(), "req-abc")
	ctx = ContextWithJobID(ctx, "job-xyz")
	log.FromContext(ctx).Info("status polled")

	entry := decodeLine(t, buf)
	if entry["request_id"] != "req-abc" {
		t.Errorf("expected request_id req-abc, got %v", entry["request_id"])
	}
	if entry["job_id"] != "job-xyz" {
		t.Errorf("expected job_id job-xyz, got %v", entry["job_id"])
	}
}

func TestLogError(t *testing.T) {
	log, buf := newBufferLogger("info")
	ctx := ContextWithJobID(context.Background(), "job-1")

	log.LogError(ctx, "nothing to report", nil)
	if buf.Len() != 0 {
		t.Fatalf("expected no output for a nil error, got %s", buf.String())
	}

	log.LogError(ctx, "job failed", errors.New("upload stalled"), "code", "TIMEOUT")
	entry := decodeLine(t, buf)
	if entry["level"] != "ERROR" {
		t.Errorf("expected level ERROR, got %v", entry["level"])
	}
	if entry["error"] != "upload stalled" || entry["code"] != "TIMEOUT" {
		t.Errorf("expected error and code attributes, got %v", entry)
	}
	if entry["job_id"] != "job-1" {
		t.Errorf("expected job_id job-1, got %v", entry["job_id"])
	}
	source, ok := entry["source"].(map[string]any)
	if !ok {
		t.Fatalf("expected source group, got %v", entry["source"])
	}
	if file, _ := source["file"].(string); !strings.HasSuffix(file, "logger_test.go") {
		t.Errorf("expected caller file logger_test.go, got %v", source["file"])
	}
}

func TestZeroConfig(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf})
	log.Debug("hidden")
	log.Info("shown")

	entry := decodeLine(t, &buf)
	if entry["msg"] != "shown" {
		t.Errorf("expected only the info record, got %s", buf.String())
	}
	if _, ok := entry["service"]; ok {
		t.Errorf("expected no service attribute, got %v", entry["service"])
	}
}

func TestDiscard(t *testing.T) {
	log := Discard()
	log.Error("dropped")
	log.WithJobID("x").Info("dropped")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"debug", "DEBUG"},
		{"INFO", "INFO"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input).String(); got != tt.expected {
				t.Errorf("parseLevel(%q) = %s, expected %s", tt.input, got, tt.expected)
			}
		})
	}
}
