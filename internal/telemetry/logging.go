package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Переменные окружения логгера.
const (
	envLogLevel  = "LOG_LEVEL"  // DEBUG | INFO | WARN | ERROR, по умолчанию INFO
	envLogFormat = "LOG_FORMAT" // json (по умолчанию) | text
)

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger создаёт логгер процесса по LOG_LEVEL/LOG_FORMAT,
// помечает записи атрибутом service и делает его глобальным.
func SetupLogger(service string) *slog.Logger {
	logger := NewLogger(os.Stdout, parseLevel(os.Getenv(envLogLevel)), os.Getenv(envLogFormat))
	if service != "" {
		logger = logger.With("service", service)
	}
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер без изменения глобального.
// На уровне DEBUG в записи добавляется source.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type loggerKey struct{}

// WithLogger кладёт логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFrom возвращает логгер из контекста и признак его наличия.
func LoggerFrom(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(loggerKey{}).(*slog.Logger)
	return logger, ok
}

// FromContext возвращает логгер из контекста или глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := LoggerFrom(ctx); ok {
		return logger
	}
	return slog.Default()
}

// WithRunID добавляет run_id.
func WithRunID(logger *slog.Logger, runID string) *slog.Logger {
	return logger.With("run_id", runID)
}

// WithClientID добавляет client_id.
func WithClientID(logger *slog.Logger, clientID string) *slog.Logger {
	return logger.With("client_id", clientID)
}

// WithOutboxID добавляет outbox_id.
func WithOutboxID(logger *slog.Logger, outboxID string) *slog.Logger {
	return logger.With("outbox_id", outboxID)
}
