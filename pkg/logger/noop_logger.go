package logger

import "context"

// noopLogger discards all log entries. Used in tests.
type noopLogger struct{}

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger { return &noopLogger{} }

func (n *noopLogger) Debug(context.Context, string, ...Field)        {}
func (n *noopLogger) Info(context.Context, string, ...Field)         {}
func (n *noopLogger) Warn(context.Context, string, ...Field)         {}
func (n *noopLogger) Error(context.Context, string, error, ...Field) {}
func (n *noopLogger) Fatal(context.Context, string, error, ...Field) {}
func (n *noopLogger) WithFields(...Field) Logger                     { return n }
func (n *noopLogger) WithComponent(string) Logger                    { return n }
