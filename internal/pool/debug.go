package pool

import (
	"io"
	"log"
)

var (
	opsLogger   *log.Logger
	traceLogger *log.Logger
)

// SetLogWriters configures the logging streams for the pool package. Pass
// nil for any writer to disable that stream.
func SetLogWriters(ops, trace io.Writer) {
	opsLogger = newLogger("[pool] ", ops)
	traceLogger = newLogger("[pool] ", trace)
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// opsf logs to the ops stream (task lifecycle, worker failures).
func opsf(format string, args ...interface{}) {
	if opsLogger != nil {
		opsLogger.Printf(format, args...)
	}
}

// tracef logs to the trace stream (queue and worker internals).
func tracef(format string, args ...interface{}) {
	if traceLogger != nil {
		traceLogger.Printf(format, args...)
	}
}
