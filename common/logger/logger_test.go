package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer, jsonFormat bool) *Logger {
	return New(&Config{
		Level:      INFO,
		Output:     buf,
		JSONFormat: jsonFormat,
		TimeFormat: "15:04:05",
	})
}

func TestLogKeyValuePairs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, true)

	l.Info("gate opened", "kind", "otp", "attempts", 2)

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if entry.Message != "gate opened" {
		t.Errorf("Message = %q", entry.Message)
	}
	if entry.Fields["kind"] != "otp" {
		t.Errorf("kind field = %v", entry.Fields["kind"])
	}
	if entry.Fields["attempts"] != float64(2) {
		t.Errorf("attempts field = %v", entry.Fields["attempts"])
	}
}

func TestLogPrintfStyle(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, false)

	l.Warn("refresh failed for %s", "sess-1")

	if !strings.Contains(buf.String(), "refresh failed for sess-1") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, false)

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("DEBUG should be filtered at INFO level, got %q", buf.String())
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, true)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithSession(ctx, "sess-9", "42")
	l.WithContext(ctx).Info("hello")

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	for key, want := range map[string]string{"request_id": "req-1", "session_id": "sess-9", "user_id": "42"} {
		if entry.Fields[key] != want {
			t.Errorf("%s = %v, want %s", key, entry.Fields[key], want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"WARNING", WARN},
		{"error", ERROR},
		{"nonsense", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
