// File: transport/pipe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pipe is an in-memory loopback Transport pair, used by this module's
// own tests in place of a real socket. It honors the same
// context-cancellable byte-stream Read/Write contract the engine uses
// against a real connection.

package transport

import (
	"context"
	"io"
	"sync"
)

// Pipe is a Transport over an in-memory byte pipe.
type Pipe struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu     sync.Mutex
	closed bool
}

// NewPipePair returns two connected Pipe transports: bytes written to
// a are readable from b, and vice versa.
func NewPipePair() (a, b *Pipe) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a = &Pipe{r: ar, w: aw}
	b = &Pipe{r: br, w: bw}
	return a, b
}

// Read reads from the pipe. ctx cancellation is honored by racing the
// blocking Read against ctx.Done, since io.PipeReader has no native
// deadline support. On cancellation the reader is left open: the
// background Read keeps waiting, and any bytes it later receives are
// discarded.
func (p *Pipe) Read(ctx context.Context, dst []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := p.r.Read(dst)
		ch <- result{n, err}
	}()
	select {
	case res := <-ch:
		return res.n, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Write writes to the pipe, honoring ctx the same way Read does.
func (p *Pipe) Write(ctx context.Context, src []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := p.w.Write(src)
		ch <- result{n, err}
	}()
	select {
	case res := <-ch:
		return res.n, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Flush is a no-op: the pipe has no internal buffering to drain.
func (p *Pipe) Flush(ctx context.Context) error { return nil }

// Close closes both ends owned by this Pipe value.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.w.Close()
	return p.r.Close()
}
