// Package log builds the process-wide structured logger. Each binary
// passes its component name, which is bound to every record so server and
// worker logs stay attributable when interleaved.
package log

import (
	"log/slog"
	"os"
)

// Logger is a component-tagged slog.Logger.
type Logger struct {
	*slog.Logger
	component string
}

// Config holds logger configuration
type Config struct {
	Level     slog.Level
	Component string

	// Handler overrides the default text handler, mainly for tests.
	Handler slog.Handler
}

// New creates a logger with the component bound as a permanent attribute.
func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.Level,
		})
	}

	logger := slog.New(handler)
	if config.Component != "" {
		logger = logger.With("component", config.Component)
	}

	return &Logger{
		Logger:    logger,
		component: config.Component,
	}
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}

// SetDefault routes package-level slog calls through this logger.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
