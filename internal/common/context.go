package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyAttemptID contextKey = "attempt_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithAttemptID pins an attempt ID chosen by the caller (async submit) so the
// verifier reuses it instead of minting a new one.
func WithAttemptID(ctx context.Context, attemptID string) context.Context {
	return context.WithValue(ctx, ContextKeyAttemptID, attemptID)
}

// AttemptIDFromContext extracts the attempt ID from context
func AttemptIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyAttemptID).(string); ok {
		return id
	}
	return ""
}
