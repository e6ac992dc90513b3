// File: wire/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Parse/emit the RFC 6455 frame header bit-exactly, and apply the
// XOR masking shared by both encode and decode directions.

package wire

import (
	"encoding/binary"
	"errors"
)

// ErrMalformedHeader is returned by ParseHeader when the bytes do not
// form a well-formed RFC 6455 header per this module's rules.
var ErrMalformedHeader = errors.New("wire: malformed frame header")

// ParseHeader decodes a complete header from buf. buf must hold at
// least HeaderLength(buf[0], buf[1]) bytes; ParseHeader does not read
// past that point.
func ParseHeader(buf []byte) (FrameHeader, error) {
	if len(buf) < 2 {
		return FrameHeader{}, ErrMalformedHeader
	}
	b0, b1 := buf[0], buf[1]

	h := FrameHeader{
		Final:  b0&finBit != 0,
		RSV1:   b0&0x40 != 0,
		RSV2:   b0&0x20 != 0,
		RSV3:   b0&0x10 != 0,
		Opcode: Opcode(b0 & 0x0F),
		Masked: b1&maskBit != 0,
	}

	// No extensions are negotiated by this module; the permitted RSV
	// set is always all-zero. Carry the bits through for inspection
	// but reject anything claiming an extension we don't support.
	if b0&rsvMask != 0 {
		return FrameHeader{}, ErrMalformedHeader
	}

	length7 := int64(b1 & 0x7f)
	offset := 2

	switch length7 {
	case 126:
		if h.Opcode.IsControl() {
			return FrameHeader{}, ErrMalformedHeader
		}
		if len(buf) < offset+2 {
			return FrameHeader{}, ErrMalformedHeader
		}
		length7 = int64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case 127:
		if h.Opcode.IsControl() {
			return FrameHeader{}, ErrMalformedHeader
		}
		if len(buf) < offset+8 {
			return FrameHeader{}, ErrMalformedHeader
		}
		raw := binary.BigEndian.Uint64(buf[offset:])
		if raw&(1<<63) != 0 {
			return FrameHeader{}, ErrMalformedHeader
		}
		length7 = int64(raw)
		offset += 8
	}

	if h.Opcode.IsControl() {
		if !h.Final || length7 > MaxControlPayload {
			return FrameHeader{}, ErrMalformedHeader
		}
	}

	if h.Masked {
		if len(buf) < offset+4 {
			return FrameHeader{}, ErrMalformedHeader
		}
		copy(h.MaskKey[:], buf[offset:offset+4])
		offset += 4
	}

	h.PayloadLen = length7
	h.Remaining = length7
	return h, nil
}

// EmitHeader serializes h into the tail of dst, a buffer that reserves
// HeaderPrefixSize bytes ahead of the payload it is about to prefix.
// It returns the offset within dst at which the header begins, so the
// caller can take dst[off:] as the contiguous header+payload slice.
func EmitHeader(h FrameHeader, dst []byte) (off int, err error) {
	if len(dst) < HeaderPrefixSize {
		return 0, errors.New("wire: send buffer prefix too small")
	}
	if h.Opcode.IsControl() && (h.PayloadLen > MaxControlPayload || !h.Final) {
		return 0, errors.New("wire: control frame payload too large or fragmented")
	}

	var hdr [14]byte
	n := 2
	var b0 byte
	if h.Final {
		b0 |= finBit
	}
	if h.RSV1 {
		b0 |= 0x40
	}
	if h.RSV2 {
		b0 |= 0x20
	}
	if h.RSV3 {
		b0 |= 0x10
	}
	b0 |= byte(h.Opcode) & 0x0F
	hdr[0] = b0

	var b1 byte
	if h.Masked {
		b1 |= maskBit
	}

	switch {
	case h.PayloadLen <= 125:
		b1 |= byte(h.PayloadLen)
		hdr[1] = b1
	case h.PayloadLen <= 0xFFFF:
		b1 |= 126
		hdr[1] = b1
		binary.BigEndian.PutUint16(hdr[2:], uint16(h.PayloadLen))
		n += 2
	default:
		b1 |= 127
		hdr[1] = b1
		binary.BigEndian.PutUint64(hdr[2:], uint64(h.PayloadLen))
		n += 8
	}

	if h.Masked {
		copy(hdr[n:], h.MaskKey[:])
		n += 4
	}

	off = HeaderPrefixSize - n
	copy(dst[off:HeaderPrefixSize], hdr[:n])
	return off, nil
}

// MaskBytes XORs buf in place with key, cycling over the four mask
// bytes starting at streamPos. The same routine masks on encode and
// unmasks on decode — MaskBytes(MaskBytes(x, k, p), k, p) == x.
func MaskBytes(buf []byte, key [4]byte, streamPos int64) {
	base := streamPos & 3
	for i := range buf {
		buf[i] ^= key[(base+int64(i))&3]
	}
}
