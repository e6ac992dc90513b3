// File: wsbuf/buffer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wsbuf

// Buffer is a pooled, zero-copy memory slice. It carries a back-pointer
// to its owning Pool directly rather than an interface, to avoid
// boxing on the hot path.
type Buffer struct {
	Data []byte
	pool *Pool
}

// Bytes returns the full byte slice backing this Buffer.
func (b Buffer) Bytes() []byte { return b.Data }

// Slice returns a new Buffer view sharing the same underlying memory.
// The returned view does not own the pool release — only the
// original Buffer obtained from Take may be released.
func (b Buffer) Slice(from, to int) Buffer {
	if from < 0 || to > len(b.Data) || from > to {
		return Buffer{}
	}
	return Buffer{Data: b.Data[from:to]}
}

// Release returns the buffer to its pool. Safe to call once; a
// second call is a no-op.
func (b *Buffer) Release() {
	if b.pool == nil || b.Data == nil {
		return
	}
	b.pool.put(b.Data)
	b.Data = nil
	b.pool = nil
}
