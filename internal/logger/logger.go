// Package logger builds the process logger and carries request-scoped
// loggers and correlation IDs through contexts.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config selects the log level, format and destination.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json (default) or console
	Output string `mapstructure:"output"` // stdout (default), stderr or file

	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

type contextKey string

const (
	loggerKey        contextKey = "logger"
	correlationIDKey contextKey = "correlation_id"
)

// New creates a JSON logger on stdout. An invalid level falls back to info.
func New(level string) zerolog.Logger {
	return build(os.Stdout, level)
}

// NewFromConfig creates a logger writing to the destination named by
// cfg.Output. A file output without a path falls back to stdout.
func NewFromConfig(cfg Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	switch cfg.Output {
	case "stderr":
		w = os.Stderr
	case "file":
		if cfg.FilePath != "" {
			w = NewFileWriter(FileConfig{
				Path:      cfg.FilePath,
				MaxSizeMB: cfg.MaxSizeMB,
				MaxFiles:  cfg.MaxFiles,
			})
		}
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
	}

	return build(w, cfg.Level)
}

func build(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithCorrelationID stores a correlation ID in the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext returns the correlation ID, or "" if none is set.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns the context's logger with its correlation ID attached.
// Without a stored logger an info-level stdout logger is used.
func FromContext(ctx context.Context) *zerolog.Logger {
	log, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		log = New("info")
	}

	if id := CorrelationIDFromContext(ctx); id != "" {
		log = log.With().Str("correlation_id", id).Logger()
	}

	return &log
}

func NewCorrelationID() string {
	return uuid.New().String()
}
