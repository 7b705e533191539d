package observability

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDCtxKey contextKey = "correlation_id"
	requestIDCtxKey     contextKey = "request_id"
	serialNumberCtxKey  contextKey = "serial_number"
)

// Attribute keys shared by logs and the context helpers.
const (
	CorrelationIDKey = "correlation_id"
	RequestIDKey     = "request_id"
	SerialNumberKey  = "serial_number"
)

// WithCorrelationID tags ctx with a correlation id, generating one when id is empty.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, correlationIDCtxKey, id)
}

// CorrelationIDFromContext returns the correlation id, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	return stringValue(ctx, correlationIDCtxKey)
}

// WithRequestID tags ctx with a request id, generating one when id is empty.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, requestIDCtxKey, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDCtxKey)
}

// WithSerialNumber binds the transaction being processed to ctx so every
// log line written under it carries the serial.
func WithSerialNumber(ctx context.Context, serial string) context.Context {
	return context.WithValue(ctx, serialNumberCtxKey, serial)
}

// SerialNumberFromContext returns the bound serial number, or "".
func SerialNumberFromContext(ctx context.Context) string {
	return stringValue(ctx, serialNumberCtxKey)
}

// NewRequestContext starts a request: a fresh request id and the parent's
// correlation id, or a new one.
func NewRequestContext(ctx context.Context, parentCorrelationID string) context.Context {
	return WithCorrelationID(WithRequestID(ctx, ""), parentCorrelationID)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
