package orchestrator

import (
	"io"
	"log"
)

var opsLogger *log.Logger

// SetLogWriters configures the logging stream for the orchestrator
// package. Pass nil to disable it.
func SetLogWriters(ops io.Writer) {
	if ops == nil {
		opsLogger = nil
		return
	}
	opsLogger = log.New(ops, "[orchestrator] ", log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (lifecycle, alerts, store failures).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}
