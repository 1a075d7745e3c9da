package logger

import "context"

type ctxKey string

const (
	requestIDKey ctxKey = "requestID"
	sessionIDKey ctxKey = "sessionID"
	userIDKey    ctxKey = "userID"
)

// ContextWithRequestID stores the request id picked up by WithContext
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithSession stores session and user ids picked up by WithContext
func ContextWithSession(ctx context.Context, sessionID, userID string) context.Context {
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return context.WithValue(ctx, userIDKey, userID)
}

// RequestIDFromContext returns the request id or ""
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
