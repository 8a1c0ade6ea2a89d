package logging

import (
	"context"
)

type contextKey string

const (
	TraceIDKey        = "trace_id"
	MessageIDKey      = "message_id"
	RawMessageIDKey   = "raw_message_id"
	QuarantineIDKey   = "quarantine_entry_id"
	IdempotencyKeyKey = "idempotency_key"
	ServiceNameKey    = "service_name"
	RequestIDKey      = "request_id"
)

// logKeys fixes the order in which context fields appear in log lines.
var logKeys = []string{
	TraceIDKey,
	MessageIDKey,
	RawMessageIDKey,
	QuarantineIDKey,
	IdempotencyKeyKey,
	ServiceNameKey,
	RequestIDKey,
}

func with(ctx context.Context, key, value string) context.Context {
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKey(key), value)
}

func get(ctx context.Context, key string) string {
	if v, ok := ctx.Value(contextKey(key)).(string); ok {
		return v
	}
	return ""
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, TraceIDKey, traceID)
}

// WithMessageID stores the transport-level message identifier.
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return with(ctx, MessageIDKey, messageID)
}

func WithRawMessageID(ctx context.Context, id string) context.Context {
	return with(ctx, RawMessageIDKey, id)
}

func WithQuarantineID(ctx context.Context, id string) context.Context {
	return with(ctx, QuarantineIDKey, id)
}

func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return with(ctx, IdempotencyKeyKey, key)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return with(ctx, ServiceNameKey, serviceName)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return with(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	return get(ctx, RequestIDKey)
}

func GetTraceID(ctx context.Context) string {
	return get(ctx, TraceIDKey)
}

func GetMessageID(ctx context.Context) string {
	return get(ctx, MessageIDKey)
}

func GetRawMessageID(ctx context.Context) string {
	return get(ctx, RawMessageIDKey)
}

func GetServiceName(ctx context.Context) string {
	return get(ctx, ServiceNameKey)
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 2*len(logKeys))
	for _, key := range logKeys {
		if v := get(ctx, key); v != "" {
			fields = append(fields, key, v)
		}
	}
	return fields
}
