// Package monitoring holds the process-wide diagnostic logger used by the
// tiling, sequencing and scan packages.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var verbosity atomic.Int32

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbosity sets the level below which Debugf messages are printed.
// Level 0 silences Debugf entirely.
func SetVerbosity(level int) {
	if level < 0 {
		level = 0
	}
	verbosity.Store(int32(level))
}

// Verbosity returns the current verbosity level.
func Verbosity() int {
	return int(verbosity.Load())
}

// Debugf logs through Logf when the verbosity is at least level.
func Debugf(level int, format string, v ...interface{}) {
	if level <= 0 || int(verbosity.Load()) < level {
		return
	}
	Logf(format, v...)
}
