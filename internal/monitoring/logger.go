package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var verbosity atomic.Int32

func init() { verbosity.Store(1) }

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbosity sets the level gating Debugf (>= 1) and Tracef (>= 2).
func SetVerbosity(level int) { verbosity.Store(int32(level)) }

// Verbosity returns the current level.
func Verbosity() int { return int(verbosity.Load()) }

// Debugf logs stage summaries when verbosity is at least 1.
func Debugf(format string, v ...interface{}) {
	if verbosity.Load() >= 1 {
		Logf(format, v...)
	}
}

// Tracef logs per-frame detail when verbosity is at least 2.
func Tracef(format string, v ...interface{}) {
	if verbosity.Load() >= 2 {
		Logf(format, v...)
	}
}
