// File: wsbuf/layout.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Carves the connection engine's one small pooled buffer into its
// disjoint sub-ranges. Sized and named per spec: header scratch plus
// four (16+128)-byte slots. The three outbound control kinds
// (ping/pong/close) share a single slot: every producer that stages a
// frame into it (inline pong replies, outbound pings, Close) does so
// only after acquiring the connection's write permit, and releases the
// permit only once that frame has been written to the transport — so
// the permit, not the slot split, is what guarantees at most one
// outbound control frame is ever being staged at a time. The three
// inbound control kinds get a slot each because a received ping's
// payload may still be staged for the answering pong while a
// subsequent pong's payload is already being unmasked into its own
// slot.

package wsbuf

const (
	headerScratchSize = 16
	controlSlotSize   = 16 + 128 // 144
	tailPadding       = 2

	// PooledSize is the total size of the control buffer the engine
	// must Take from its BufferPool at construction.
	PooledSize = headerScratchSize + controlSlotSize*4 + tailPadding
)

// Layout names the sub-ranges carved out of one PooledSize buffer.
type Layout struct {
	raw []byte

	HeaderScratch []byte
	OutControl    []byte // shared staging slot for out-ping/out-pong/out-close
	InPing        []byte
	InPong        []byte
	InClose       []byte
}

// Carve partitions buf (which must be at least PooledSize bytes) into
// the named sub-ranges. buf is retained by reference; no copying.
func Carve(buf []byte) Layout {
	if len(buf) < PooledSize {
		panic("wsbuf: buffer too small to carve")
	}
	off := 0
	next := func(n int) []byte {
		s := buf[off : off+n]
		off += n
		return s
	}
	return Layout{
		raw:           buf,
		HeaderScratch: next(headerScratchSize),
		OutControl:    next(controlSlotSize),
		InPing:        next(controlSlotSize),
		InPong:        next(controlSlotSize),
		InClose:       next(controlSlotSize),
	}
}

// OutPing, OutPong, OutClose all alias the same shared staging slot;
// named separately purely for call-site readability.
func (l Layout) OutPing() []byte  { return l.OutControl }
func (l Layout) OutPong() []byte  { return l.OutControl }
func (l Layout) OutClose() []byte { return l.OutControl }

// Raw returns the full backing slice, for returning to the pool.
func (l Layout) Raw() []byte { return l.raw }

// SendLayout is the larger, independently-sized outbound data buffer.
// Its first HeaderPrefixSize bytes are reserved so the frame header
// can be written directly before the payload with no copy.
type SendLayout struct {
	raw []byte
}

// NewSendLayout wraps buf (size >= headerPrefix + at least one byte of
// payload room) as a SendLayout.
func NewSendLayout(buf []byte) SendLayout {
	return SendLayout{raw: buf}
}

// Prefix returns the reserved header prefix region.
func (s SendLayout) Prefix() []byte { return s.raw[:16] }

// Payload returns the payload region following the reserved prefix.
func (s SendLayout) Payload() []byte { return s.raw[16:] }

// Raw returns the full backing slice, for returning to the pool.
func (s SendLayout) Raw() []byte { return s.raw }
