// File: wsbuf/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Size-classed, sync.Pool-backed BufferPool. One process-wide pool of
// power-of-two size classes is enough: the engine's sub-buffers are
// small, short-lived, and never handed across goroutines long enough
// for NUMA placement to matter.

package wsbuf

import "sync"

// BufferPool is the collaborator the connection engine takes its two
// pooled buffers (the small control buffer and the larger send
// buffer) from.
type BufferPool interface {
	Take(size int) Buffer
	Return(b Buffer)
}

// classFor rounds size up to the next power-of-two bucket starting
// at 64 bytes.
func classFor(size int) int {
	c := 64
	for c < size {
		c <<= 1
	}
	return c
}

// Pool is the default in-process BufferPool implementation.
type Pool struct {
	mu      sync.Mutex
	classes map[int]*sync.Pool
}

// NewPool constructs an empty Pool. Size classes are created lazily.
func NewPool() *Pool {
	return &Pool{classes: make(map[int]*sync.Pool)}
}

func (p *Pool) classPool(class int) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.classes[class]
	if !ok {
		cls := class
		sp = &sync.Pool{New: func() any { return make([]byte, cls) }}
		p.classes[class] = sp
	}
	return sp
}

// Take returns a Buffer of at least size bytes.
func (p *Pool) Take(size int) Buffer {
	class := classFor(size)
	sp := p.classPool(class)
	data := sp.Get().([]byte)
	if cap(data) < size {
		data = make([]byte, size)
	}
	return Buffer{Data: data[:size], pool: p}
}

// Return releases b back to its size class, through the same path
// Buffer.Release uses. The connection engine returns its two pooled
// buffers through it at Dispose.
func (p *Pool) Return(b Buffer) {
	if b.Data == nil {
		return
	}
	p.put(b.Data)
}

func (p *Pool) put(data []byte) {
	class := classFor(cap(data))
	sp := p.classPool(class)
	sp.Put(data[:cap(data)])
}
