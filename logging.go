package p2pmidi

import "log/slog"

// Logger defines the logging interface for the node. It is designed to be
// compatible with standard logging libraries such as slog, zap, and
// zerolog.
//
// Implementations must be safe for concurrent use.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}

// NopLogger discards all log messages. It is the default when no logger
// is configured.
type NopLogger struct{}

var _ Logger = NopLogger{}

func (NopLogger) Debug(msg string, keysAndValues ...any) {}
func (NopLogger) Info(msg string, keysAndValues ...any)  {}
func (NopLogger) Warn(msg string, keysAndValues ...any)  {}
func (NopLogger) Error(msg string, keysAndValues ...any) {}

// SlogLogger adapts a *slog.Logger to the Logger interface.
type SlogLogger struct {
	L *slog.Logger
}

var _ Logger = SlogLogger{}

func (s SlogLogger) Debug(msg string, keysAndValues ...any) {
	s.L.Debug(msg, keysAndValues...)
}

func (s SlogLogger) Info(msg string, keysAndValues ...any) {
	s.L.Info(msg, keysAndValues...)
}

func (s SlogLogger) Warn(msg string, keysAndValues ...any) {
	s.L.Warn(msg, keysAndValues...)
}

func (s SlogLogger) Error(msg string, keysAndValues ...any) {
	s.L.Error(msg, keysAndValues...)
}
