package audit

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fieldMap extracts string field values from a log entry.
func fieldMap(fields []zapcore.Field) map[string]string {
	result := make(map[string]string)
	for _, f := range fields {
		if f.Type == zapcore.StringType {
			result[f.Key] = f.String
		}
	}
	return result
}

func TestNewLogger(t *testing.T) {
	auditLogger := NewLogger(zap.NewNop())

	if auditLogger == nil {
		t.Fatal("NewLogger returned nil")
	}
	if auditLogger.logger == nil {
		t.Fatal("audit logger has nil internal logger")
	}
}

func TestLogger_Log(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	auditLogger := NewLogger(zap.New(core))

	auditLogger.Log(context.Background(), &Event{
		Type:         EventCallInitiated,
		Severity:     SeverityInfo,
		SourceIP:     "192.168.1.1",
		RequestID:    "req-456",
		ResourceType: "case",
		ResourceID:   "abc123",
		Outcome:      "success",
	})

	if logs.Len() != 1 {
		t.Fatalf("expected 1 log entry, got %d", logs.Len())
	}

	entry := logs.All()[0]
	if entry.Message != "security audit event" {
		t.Errorf("unexpected message: %s", entry.Message)
	}
	if entry.Level != zapcore.InfoLevel {
		t.Errorf("level = %v, want info", entry.Level)
	}

	fields := fieldMap(entry.Context)
	if fields["event_type"] != string(EventCallInitiated) {
		t.Errorf("event_type = %q", fields["event_type"])
	}
	if fields["source_ip"] != "192.168.1.1" {
		t.Errorf("source_ip = %q", fields["source_ip"])
	}
	if fields["resource_id"] != "abc123" {
		t.Errorf("resource_id = %q", fields["resource_id"])
	}
	if fields["audit_id"] == "" {
		t.Error("audit_id not generated")
	}
}

func TestLogger_SeverityMapsToLevel(t *testing.T) {
	tests := []struct {
		severity Severity
		want     zapcore.Level
	}{
		{SeverityInfo, zapcore.InfoLevel},
		{SeverityWarning, zapcore.WarnLevel},
		{SeverityError, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		core, logs := observer.New(zap.InfoLevel)
		auditLogger := NewLogger(zap.New(core))

		auditLogger.Log(context.Background(), &Event{
			Type:     EventRateLimitExceeded,
			Severity: tt.severity,
			Outcome:  "denied",
		})

		if logs.Len() != 1 {
			t.Fatalf("severity %s: expected 1 entry, got %d", tt.severity, logs.Len())
		}
		if got := logs.All()[0].Level; got != tt.want {
			t.Errorf("severity %s: level = %v, want %v", tt.severity, got, tt.want)
		}
	}
}

func TestLogger_OmitsEmptyFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	auditLogger := NewLogger(zap.New(core))

	auditLogger.Log(context.Background(), &Event{
		Type:     EventServiceStarted,
		Severity: SeverityInfo,
		Outcome:  "success",
	})

	fields := fieldMap(logs.All()[0].Context)
	for _, key := range []string{"source_ip", "request_id", "resource_id", "reason"} {
		if _, ok := fields[key]; ok {
			t.Errorf("field %q should be omitted when empty", key)
		}
	}
}

func TestWebhookValidationFailed(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	auditLogger := NewLogger(zap.New(core))

	auditLogger.WebhookValidationFailed(context.Background(), "10.0.0.1", "req-1", "signature mismatch")

	entry := logs.All()[0]
	if entry.Level != zapcore.WarnLevel {
		t.Errorf("level = %v, want warn", entry.Level)
	}
	fields := fieldMap(entry.Context)
	if fields["event_type"] != string(EventWebhookValidationFail) {
		t.Errorf("event_type = %q", fields["event_type"])
	}
	if fields["outcome"] != "denied" {
		t.Errorf("outcome = %q", fields["outcome"])
	}
	if fields["reason"] != "signature mismatch" {
		t.Errorf("reason = %q", fields["reason"])
	}
}

func TestCallInitiatedMasksPhone(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	auditLogger := NewLogger(zap.New(core))

	auditLogger.CallInitiated(context.Background(), "10.0.0.1", "req-1", "abc123", "+15551234567")

	fields := fieldMap(logs.All()[0].Context)
	if fields["reason"] == "+15551234567" {
		t.Error("phone number logged unmasked")
	}
	if fields["reason"] == "" {
		t.Error("masked phone number missing")
	}
}

func TestPhoneChangeDenied(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	auditLogger := NewLogger(zap.New(core))

	auditLogger.PhoneChangeDenied(context.Background(), "10.0.0.1", "req-1", "abc123")

	entry := logs.All()[0]
	if entry.Level != zapcore.WarnLevel {
		t.Errorf("level = %v, want warn", entry.Level)
	}
	fields := fieldMap(entry.Context)
	if fields["resource_id"] != "abc123" {
		t.Errorf("resource_id = %q", fields["resource_id"])
	}
}
