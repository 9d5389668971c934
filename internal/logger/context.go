package logger

import (
	"context"

	"github.com/oklog/ulid/v2"
)

type contextKey string

const RequestIDKey contextKey = "request_id"

// WithRequestID stamps ctx with id. An empty id is replaced by a fresh ULID.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = NewRequestID()
	}
	return context.WithValue(ctx, RequestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

func NewRequestID() string {
	return ulid.Make().String()
}
