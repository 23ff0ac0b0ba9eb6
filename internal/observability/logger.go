// Package observability holds the process logger and metrics.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// Logger returns the process-wide logger.
func Logger() *slog.Logger {
	return logger
}

// Configure replaces the process logger with a JSON logger at the given level.
func Configure(w io.Writer, level string) {
	logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps a config string to a slog level; unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// RequestIDFromContext returns the request_id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	reqID, _ := ctx.Value(ctxKeyRequestID).(string)
	return reqID
}

// LoggerFromContext adds request_id if present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	reqID := RequestIDFromContext(ctx)
	if reqID == "" {
		return logger
	}
	return logger.With("request_id", reqID)
}
