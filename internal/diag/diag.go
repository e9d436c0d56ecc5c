// Package diag is the internal diagnostic channel for logrecorder.
//
// Capture runs on the producer's goroutine and must never fail observably,
// so anomalies during a push are reported here instead of being returned.
// The package logger is disabled until a caller installs one with Set.
package diag

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	nop := zerolog.Nop()
	current.Store(&nop)
}

// New builds a zerolog logger writing to w at the given level name.
// Unknown level names fall back to info. A nil writer means stderr.
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// L returns the current diagnostic logger.
func L() *zerolog.Logger {
	return current.Load()
}

// Set installs l as the diagnostic logger and returns the previous one.
func Set(l zerolog.Logger) *zerolog.Logger {
	return current.Swap(&l)
}

// Component returns a child of the current logger tagged with name.
func Component(name string) zerolog.Logger {
	return L().With().Str("component", name).Logger()
}
