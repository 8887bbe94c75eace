package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		if buf.Len() == 0 {
			t.Fatal("Info message should be logged at Info level")
		}

		var entry map[string]interface{}
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("Failed to unmarshal log entry: %v", err)
		}
		if entry["level"] != "INFO" {
			t.Errorf("Expected level INFO, got %v", entry["level"])
		}
		if entry["msg"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", entry["msg"])
		}
	})

	t.Run("error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Error("error message")
		if buf.Len() == 0 {
			t.Error("Error message should be logged at Info level")
		}
	})
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("org_id", "org-1").Info("configured")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	if entry["org_id"] != "org-1" {
		t.Errorf("Expected org_id field, got %v", entry["org_id"])
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("boom")).Error("request failed")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	if entry["error"] != "boom" {
		t.Errorf("Expected error field 'boom', got %v", entry["error"])
	}

	buf.Reset()
	logger.WithError(nil).Info("no error attached")
	entry = map[string]interface{}{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	if _, ok := entry["error"]; ok {
		t.Error("nil error should not add an error field")
	}
}

func TestParseLogLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  LogLevel
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.input); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID = %v, want req-123", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID on empty context = %v, want empty", got)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-456")

	FromContext(ctx).Info("annotated")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry: %v", err)
	}
	if entry["request_id"] != "req-456" {
		t.Errorf("Expected request_id field, got %v", entry["request_id"])
	}
}
