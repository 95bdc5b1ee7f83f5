package jmqtt

import "log/slog"

// Logger is the logging port injected into builders and connections.
// It follows the log/slog calling convention of alternating key/value args.
//
// The default is a no-op sink; pass NewSlogLogger to wire a real logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards all records.
func NopLogger() Logger { return nopLogger{} }

// NewSlogLogger adapts a *slog.Logger to the Logger port.
//
// Example:
//
//	logger := jmqtt.NewSlogLogger(slog.Default().With("component", "mqtt"))
//	conn, err := jmqtt.NewV3Builder("broker.local", "sensor-hub").
//	    Logger(logger).
//	    Build()
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return slogLogger{l}
}

type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }
