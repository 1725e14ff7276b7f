// Package monitoring holds the process-wide diagnostic log streams.
//
// Three streams are kept separate so the per-frame chatter of a 120 fps
// camera does not bury the messages an operator has to act on:
//
//   - ops:   actionable warnings, device and sink failures, data loss
//   - diag:  day-to-day diagnostics and tuning context
//   - trace: per-frame telemetry
package monitoring

import (
	"io"
	"log"
	"sync"
)

var (
	streamsMu sync.RWMutex
	ops       *log.Logger
	diag      *log.Logger
	trace     *log.Logger
)

// SetLogWriters configures the ops, diag and trace streams.
// Pass nil for any writer to disable that stream.
func SetLogWriters(opsW, diagW, traceW io.Writer) {
	streamsMu.Lock()
	defer streamsMu.Unlock()
	ops = newLogger(opsW)
	diag = newLogger(diagW)
	trace = newLogger(traceW)
}

func newLogger(w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, "", log.LstdFlags|log.Lmicroseconds)
}

// Stream is a prefixed view over the shared streams, one per component.
type Stream struct {
	prefix string
}

// For returns a Stream whose messages are prefixed with "[component] ".
func For(component string) Stream {
	return Stream{prefix: "[" + component + "] "}
}

// Opsf logs to the ops stream.
func (s Stream) Opsf(format string, args ...interface{}) {
	s.emit(func() *log.Logger { return ops }, format, args)
}

// Diagf logs to the diag stream.
func (s Stream) Diagf(format string, args ...interface{}) {
	s.emit(func() *log.Logger { return diag }, format, args)
}

// Tracef logs to the trace stream.
func (s Stream) Tracef(format string, args ...interface{}) {
	s.emit(func() *log.Logger { return trace }, format, args)
}

func (s Stream) emit(pick func() *log.Logger, format string, args []interface{}) {
	streamsMu.RLock()
	l := pick()
	streamsMu.RUnlock()
	if l == nil {
		return
	}
	l.Printf(s.prefix+format, args...)
}
