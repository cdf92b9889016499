package logging

import (
	"fmt"
)

// Sink adapts a Logger to the engine's printf-style info log. Engine messages
// are logged at DEBUG.
//
// Every NewSink call returns a distinct pointer, so a Sink doubles as the
// identity of the database handle it was configured into.
type Sink struct {
	logger Logger
	prefix string
}

// NewSink creates a sink that tags messages with prefix as the component
func NewSink(logger Logger, prefix string) *Sink {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Sink{logger: logger.With(Component(prefix)), prefix: prefix}
}

// Logf formats and forwards an engine message
func (s *Sink) Logf(format string, args ...any) {
	s.logger.Debug(fmt.Sprintf(format, args...))
}

// Prefix returns the component name the sink logs under
func (s *Sink) Prefix() string {
	return s.prefix
}
