// Package monitoring holds the package-level diagnostic logger shared by
// the pipeline stages.
package monitoring

import (
	"log"
	"sync/atomic"
)

// LoggerFunc is the signature of a diagnostic log function.
type LoggerFunc func(format string, v ...any)

var logger atomic.Pointer[LoggerFunc]

func init() {
	SetLogger(log.Printf)
}

// Logf writes a diagnostic message through the current logger. It
// defaults to log.Printf and may be swapped by SetLogger while stages are
// running.
func Logf(format string, v ...any) {
	(*logger.Load())(format, v...)
}

// Stagef logs a message tagged with the pipeline stage that produced it.
func Stagef(stage, format string, v ...any) {
	Logf("[%s] "+format, append([]any{stage}, v...)...)
}

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f LoggerFunc) {
	if f == nil {
		f = func(string, ...any) {}
	}
	logger.Store(&f)
}
