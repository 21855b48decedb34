package donation

import (
	"fmt"
	"io"
	"sync"
)

// Tracer receives the raw request and response lines of every call.
// The session logger implements it.
type Tracer interface {
	Log(format string, args ...any)
}

type nopTracer struct{}

func (nopTracer) Log(string, ...any) {}

// WriterTracer writes trace lines to w, one per call.
type WriterTracer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterTracer returns a tracer that prints to w.
func NewWriterTracer(w io.Writer) *WriterTracer {
	return &WriterTracer{w: w}
}

// Log writes one formatted line.
func (t *WriterTracer) Log(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, format+"\n", args...)
}

// MultiTracer fans trace lines out to several tracers.
type MultiTracer []Tracer

// Log forwards to every tracer.
func (m MultiTracer) Log(format string, args ...any) {
	for _, t := range m {
		t.Log(format, args...)
	}
}
