// Package sink pairs a frozen handlers.Handlers table with the closure
// value threaded through a decode, and provides the small per-decode
// scratch arena (Pipeline) that lets fixed-width values build up their bytes
// across PutBuffer calls without an allocation per value.
package sink

import (
	"fmt"

	"github.com/wkalt/pbcore/handlers"
)

// Sink binds a Handlers table to the closure value its handlers will
// receive on every call. A new Sink is created per top-level decode;
// wire.New reads its Handlers and closure once, and the decoder tracks
// submessage and sequence closures in its own frames.
type Sink struct {
	handlers *handlers.Handlers
	closure  any
}

// New returns a Sink bound to h, with initial closure value closure.
func New(h *handlers.Handlers, closure any) *Sink {
	return &Sink{handlers: h, closure: closure}
}

// Handlers returns the bound dispatch table.
func (s *Sink) Handlers() *handlers.Handlers { return s.handlers }

// Closure returns the current closure value.
func (s *Sink) Closure() any { return s.closure }

// SetClosure replaces the current closure value. wire.New reads the closure
// once, so a change made after that does not reach a running decode.
func (s *Sink) SetClosure(c any) { s.closure = c }

// Pipeline owns the running status of a single decode and a small
// byte-scratch arena reused across PutBuffer calls, which holds the bytes
// of a fixed-width value (fixed32/fixed64, float/double) while they arrive,
// possibly split across a buffer boundary.
type Pipeline struct {
	status  error
	scratch []byte
}

// NewPipeline returns an idle Pipeline with no error status.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Status returns the pipeline's current error status, nil if healthy.
func (p *Pipeline) Status() error { return p.status }

// Fail latches err as the pipeline's terminal status. Once failed, a
// pipeline stays failed: later calls to Fail do not overwrite the first
// error. Fail returns the latched error.
func (p *Pipeline) Fail(err error) error {
	if p.status == nil {
		p.status = err
	}
	return p.status
}

// Reset clears the pipeline's status and scratch buffer so it can be reused
// for a new decode.
func (p *Pipeline) Reset() {
	p.status = nil
	p.scratch = p.scratch[:0]
}

// Scratch returns the pipeline's reusable byte arena, grown to at least
// size n and truncated to length 0. Callers append to the returned slice
// and must not retain it past the next Scratch/Reset call.
func (p *Pipeline) Scratch(n int) []byte {
	if cap(p.scratch) < n {
		p.scratch = make([]byte, 0, n)
	}
	p.scratch = p.scratch[:0]
	return p.scratch
}

// Append grows the scratch buffer by appending data, reallocating as
// needed, and returns the new scratch slice.
func (p *Pipeline) Append(data []byte) []byte {
	p.scratch = append(p.scratch, data...)
	return p.scratch
}

// Bytes returns the scratch buffer's current contents, valid until the next
// Scratch or Reset call.
func (p *Pipeline) Bytes() []byte { return p.scratch }

// CheckHealthy returns an error if the pipeline has already failed,
// letting callers bail out of further decode work early.
func (p *Pipeline) CheckHealthy() error {
	if p.status != nil {
		return fmt.Errorf("sink: pipeline already failed: %w", p.status)
	}
	return nil
}
