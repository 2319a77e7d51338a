package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const runIDKey contextKey = "run_id"

// NewRunID returns a short random id for correlating one command's logs.
func NewRunID() string {
	return uuid.New().String()[:8]
}

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

func RunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns the global logger with the context's run id attached.
func Ctx(ctx context.Context) zerolog.Logger {
	logger := Logger()
	if id := RunID(ctx); id != "" {
		logger = logger.With().Str("run_id", id).Logger()
	}
	return logger
}
