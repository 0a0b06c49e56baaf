package core

import (
	"fmt"
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger used throughout the engine. A nil *Logger
// discards everything.
type Logger = logiface.Logger[logiface.Event]

// NewLogger returns a JSON logger writing to w at the given level.
func NewLogger(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// DefaultLogger logs warnings and above to stderr.
func DefaultLogger() *Logger {
	return NewLogger(os.Stderr, logiface.LevelWarning)
}

// ParseLogLevel accepts the syslog keywords used by logiface (and "warn",
// "error").
func ParseLogLevel(s string) (logiface.Level, error) {
	switch s {
	case "warn":
		return logiface.LevelWarning, nil
	case "error":
		return logiface.LevelError, nil
	}
	for l := logiface.LevelDisabled; l <= logiface.LevelTrace; l++ {
		if l.String() == s {
			return l, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("dispatch: unknown log level %q", s)
}
