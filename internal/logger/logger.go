// Package logger configures the zerolog logger shared by both services.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New creates a JSON logger on stderr for the given service. Verbosity
// counts the -v flags: 0 warn, 1 info, 2 debug, 3+ trace.
func New(service string, verbosity int) zerolog.Logger {
	level := zerolog.WarnLevel
	switch {
	case verbosity >= 3:
		level = zerolog.TraceLevel
	case verbosity == 2:
		level = zerolog.DebugLevel
	case verbosity == 1:
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stderr).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Component derives a sub-logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
