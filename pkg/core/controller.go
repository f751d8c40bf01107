package core

import "strings"

// Controller is the capability shared by every autopilot variant.
// Run is called once per host tick; it never blocks.
type Controller interface {
	Name() string
	Kind() Kind
	Run()
	Abort()
	// Status appends a human-readable multi-line block to sb.
	Status(sb *strings.Builder)
	Done() bool
}

// TerminateFunc is invoked exactly once per controller lifetime.
type TerminateFunc func(controllerName, reason string)

// ResumeFunc receives the resume token and raw target text whenever the
// persisted state of a controller changes.
type ResumeFunc func(token, target string)

// Logger is the narrow log sink controllers write through.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
