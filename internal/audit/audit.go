// Package audit emits structured security audit events on a dedicated
// named logger, separate from operational logs, so they can be routed
// to long-term retention.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jkindrix/scamshield/internal/sanitize"
)

// EventType represents the type of audit event.
type EventType string

// Security audit event types.
const (
	// Webhook events
	EventWebhookValidationFail EventType = "webhook.validation.failed"
	EventWebhookForeignAccount EventType = "webhook.account.mismatch"

	// Rate limiting
	EventRateLimitExceeded EventType = "ratelimit.exceeded"

	// Case lifecycle
	EventCaseProvisioned    EventType = "case.provisioned"
	EventPhoneChanged       EventType = "case.phone.changed"
	EventPhoneChangeDenied  EventType = "case.phone.denied"
	EventCallInitiated      EventType = "case.call.initiated"

	// System events
	EventServiceStarted  EventType = "system.started"
	EventServiceStopping EventType = "system.stopping"
)

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event represents an audit log entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`

	// Source of the event.
	SourceIP  string `json:"source_ip,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Resource being accessed or modified.
	ResourceType string `json:"resource_type,omitempty"` // "case", "session", "webhook"
	ResourceID   string `json:"resource_id,omitempty"`

	Outcome string `json:"outcome"` // "success", "failure", "denied"
	Reason  string `json:"reason,omitempty"`
}

// Logger provides audit logging capabilities.
type Logger struct {
	logger *zap.Logger
}

// NewLogger creates a new audit logger.
func NewLogger(baseLogger *zap.Logger) *Logger {
	return &Logger{logger: baseLogger.Named("audit")}
}

// Log records an audit event.
func (l *Logger) Log(ctx context.Context, event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	level := zap.InfoLevel
	switch event.Severity {
	case SeverityWarning:
		level = zap.WarnLevel
	case SeverityError:
		level = zap.ErrorLevel
	}

	fields := []zap.Field{
		zap.String("audit_id", event.ID),
		zap.Time("audit_timestamp", event.Timestamp),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.String("outcome", event.Outcome),
	}
	if event.SourceIP != "" {
		fields = append(fields, zap.String("source_ip", event.SourceIP))
	}
	if event.RequestID != "" {
		fields = append(fields, zap.String("request_id", event.RequestID))
	}
	if event.ResourceType != "" {
		fields = append(fields, zap.String("resource_type", event.ResourceType))
	}
	if event.ResourceID != "" {
		fields = append(fields, zap.String("resource_id", event.ResourceID))
	}
	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}

	if ce := l.logger.Check(level, "security audit event"); ce != nil {
		ce.Write(fields...)
	}
}

// Helper methods for common audit scenarios

// WebhookValidationFailed logs a webhook that failed signature validation.
func (l *Logger) WebhookValidationFailed(ctx context.Context, ip, requestID, reason string) {
	l.Log(ctx, &Event{
		Type:         EventWebhookValidationFail,
		Severity:     SeverityWarning,
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "webhook",
		Outcome:      "denied",
		Reason:       reason,
	})
}

// WebhookForeignAccount logs a webhook signed for a different provider account.
func (l *Logger) WebhookForeignAccount(ctx context.Context, ip, requestID, accountID string) {
	l.Log(ctx, &Event{
		Type:         EventWebhookForeignAccount,
		Severity:     SeverityWarning,
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "webhook",
		ResourceID:   accountID,
		Outcome:      "denied",
	})
}

// RateLimitExceeded logs a request rejected by rate limiting.
func (l *Logger) RateLimitExceeded(ctx context.Context, ip, requestID, limiter string) {
	l.Log(ctx, &Event{
		Type:         EventRateLimitExceeded,
		Severity:     SeverityWarning,
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "limiter",
		ResourceID:   limiter,
		Outcome:      "denied",
	})
}

// CaseProvisioned logs creation of a new case.
func (l *Logger) CaseProvisioned(ctx context.Context, ip, requestID, slug string) {
	l.Log(ctx, &Event{
		Type:         EventCaseProvisioned,
		Severity:     SeverityInfo,
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "case",
		ResourceID:   slug,
		Outcome:      "success",
	})
}

// PhoneChanged logs a successful phone number registration.
func (l *Logger) PhoneChanged(ctx context.Context, ip, requestID, slug string) {
	l.Log(ctx, &Event{
		Type:         EventPhoneChanged,
		Severity:     SeverityInfo,
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "case",
		ResourceID:   slug,
		Outcome:      "success",
	})
}

// PhoneChangeDenied logs a phone replacement attempt without a valid
// override token.
func (l *Logger) PhoneChangeDenied(ctx context.Context, ip, requestID, slug string) {
	l.Log(ctx, &Event{
		Type:         EventPhoneChangeDenied,
		Severity:     SeverityWarning,
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "case",
		ResourceID:   slug,
		Outcome:      "denied",
	})
}

// CallInitiated logs an outbound monitor call, with the dialed number masked.
func (l *Logger) CallInitiated(ctx context.Context, ip, requestID, slug, phoneNumber string) {
	l.Log(ctx, &Event{
		Type:         EventCallInitiated,
		Severity:     SeverityInfo,
		SourceIP:     ip,
		RequestID:    requestID,
		ResourceType: "case",
		ResourceID:   slug,
		Outcome:      "success",
		Reason:       sanitize.Phone(phoneNumber),
	})
}

// ServiceStarted logs service startup.
func (l *Logger) ServiceStarted(ctx context.Context, environment string) {
	l.Log(ctx, &Event{
		Type:         EventServiceStarted,
		Severity:     SeverityInfo,
		ResourceType: "system",
		ResourceID:   environment,
		Outcome:      "success",
	})
}

// ServiceStopping logs service shutdown.
func (l *Logger) ServiceStopping(ctx context.Context, reason string) {
	l.Log(ctx, &Event{
		Type:         EventServiceStopping,
		Severity:     SeverityInfo,
		ResourceType: "system",
		Outcome:      "success",
		Reason:       reason,
	})
}
