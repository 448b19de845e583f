// logging.go: Pluggable logging interface
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"context"
	"sync"
)

type ctxLoggerKey struct{}

// Logger is the logging surface used by the resolver, the runtime and the
// collaborators. Arguments after the message are alternating keys and values.
//
// The package ships a silent NoOpLogger and a capturing TestLogger; ZapAdapter
// bridges to go.uber.org/zap:
//
//	z, _ := zap.NewProduction()
//	r := NewResolver(rc, WithLogger(NewZapAdapter(z)))
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With derives a logger that prepends args to every entry.
	With(args ...any) Logger
}

// NewLogger normalizes an option value into a Logger. nil yields a
// NoOpLogger; anything that is not a Logger panics.
func NewLogger(logger any) Logger {
	if logger == nil {
		return NewNoOpLogger()
	}
	l, ok := logger.(Logger)
	if !ok {
		panic("unsupported logger type: expected Logger interface or nil")
	}
	return l
}

// NoOpLogger drops every entry.
type NoOpLogger struct{}

// NewNoOpLogger returns a silent logger.
func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (*NoOpLogger) Debug(string, ...any) {}
func (*NoOpLogger) Info(string, ...any)  {}
func (*NoOpLogger) Warn(string, ...any)  {}
func (*NoOpLogger) Error(string, ...any) {}

// With returns the receiver.
func (n *NoOpLogger) With(...any) Logger { return n }

// TestLogMessage is one entry captured by a TestLogger.
type TestLogMessage struct {
	Level   string
	Message string
	Args    []any
}

// testLogSink is shared by a TestLogger and everything derived from it via With.
type testLogSink struct {
	mu      sync.RWMutex
	entries []TestLogMessage
}

// TestLogger records entries in memory so tests can assert on them.
type TestLogger struct {
	sink   *testLogSink
	prefix []any
}

// NewTestLogger returns an empty capturing logger.
func NewTestLogger() *TestLogger {
	return &TestLogger{sink: &testLogSink{}}
}

func (t *TestLogger) log(level, msg string, args []any) {
	entry := TestLogMessage{Level: level, Message: msg}
	entry.Args = append(append(make([]any, 0, len(t.prefix)+len(args)), t.prefix...), args...)

	t.sink.mu.Lock()
	t.sink.entries = append(t.sink.entries, entry)
	t.sink.mu.Unlock()
}

func (t *TestLogger) Debug(msg string, args ...any) { t.log("DEBUG", msg, args) }
func (t *TestLogger) Info(msg string, args ...any)  { t.log("INFO", msg, args) }
func (t *TestLogger) Warn(msg string, args ...any)  { t.log("WARN", msg, args) }
func (t *TestLogger) Error(msg string, args ...any) { t.log("ERROR", msg, args) }

// With returns a logger writing into the same sink with args prepended.
func (t *TestLogger) With(args ...any) Logger {
	prefix := append(append(make([]any, 0, len(t.prefix)+len(args)), t.prefix...), args...)
	return &TestLogger{sink: t.sink, prefix: prefix}
}

// Messages returns a copy of everything captured so far.
func (t *TestLogger) Messages() []TestLogMessage {
	t.sink.mu.RLock()
	defer t.sink.mu.RUnlock()
	return append([]TestLogMessage(nil), t.sink.entries...)
}

// HasMessage reports whether an entry with this level and text was captured.
func (t *TestLogger) HasMessage(level, message string) bool {
	t.sink.mu.RLock()
	defer t.sink.mu.RUnlock()
	for _, e := range t.sink.entries {
		if e.Level == level && e.Message == message {
			return true
		}
	}
	return false
}

// Clear drops the captured entries.
func (t *TestLogger) Clear() {
	t.sink.mu.Lock()
	t.sink.entries = nil
	t.sink.mu.Unlock()
}

// DefaultLogger is used when no logger option is given.
func DefaultLogger() Logger {
	return NewNoOpLogger()
}

// LoggerFromContext returns the logger stored by ContextWithLogger, or the
// default logger.
func LoggerFromContext(ctx context.Context) Logger {
	return loggerFromContextOr(ctx, DefaultLogger())
}

func loggerFromContextOr(ctx context.Context, fallback Logger) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxLoggerKey{}).(Logger); ok {
			return l
		}
	}
	return fallback
}

// ContextWithLogger attaches logger to ctx.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, ctxLoggerKey{}, logger)
}
