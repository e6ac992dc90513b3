package wire_test

import (
	"bytes"
	"testing"

	"github.com/momentics/wsengine/wire"
)

func TestParseEmitRoundTrip(t *testing.T) {
	cases := []wire.FrameHeader{
		{Final: true, Opcode: wire.OpText, PayloadLen: 0},
		{Final: true, Opcode: wire.OpBinary, PayloadLen: 1},
		{Final: false, Opcode: wire.OpBinary, PayloadLen: 125},
		{Final: true, Opcode: wire.OpBinary, PayloadLen: 126},
		{Final: true, Opcode: wire.OpBinary, PayloadLen: 65535},
		{Final: true, Opcode: wire.OpBinary, PayloadLen: 65536},
		{Final: true, Opcode: wire.OpBinary, PayloadLen: 65536, Masked: true, MaskKey: [4]byte{1, 2, 3, 4}},
		{Final: true, Opcode: wire.OpPing, PayloadLen: 4, Masked: true, MaskKey: [4]byte{0x37, 0xfa, 0x21, 0x3d}},
	}

	for _, h := range cases {
		buf := make([]byte, wire.HeaderPrefixSize)
		off, err := wire.EmitHeader(h, buf)
		if err != nil {
			t.Fatalf("EmitHeader(%+v): %v", h, err)
		}
		got, err := wire.ParseHeader(buf[off:])
		if err != nil {
			t.Fatalf("ParseHeader(%+v): %v", h, err)
		}
		h.Remaining = h.PayloadLen
		if got != h {
			t.Fatalf("round trip mismatch: want %+v got %+v", h, got)
		}
	}
}

func TestHeaderLengthBoundaries(t *testing.T) {
	if n := wire.HeaderLength(0x82, 125); n != 2 {
		t.Fatalf("125-length header: want 2, got %d", n)
	}
	if n := wire.HeaderLength(0x82, 126); n != 4 {
		t.Fatalf("126-length header: want 4, got %d", n)
	}
	if n := wire.HeaderLength(0x82, 127); n != 10 {
		t.Fatalf("127-length header: want 10, got %d", n)
	}
	if n := wire.HeaderLength(0x82, 0x80|125); n != 6 {
		t.Fatalf("masked 125-length header: want 6, got %d", n)
	}
}

func TestParseRejectsControlFrameLength126(t *testing.T) {
	buf := make([]byte, wire.HeaderPrefixSize)
	buf[0] = 0x89 // FIN, ping
	buf[1] = 126
	if _, err := wire.ParseHeader(buf); err == nil {
		t.Fatal("expected error for control frame claiming extended length")
	}
}

func TestParseRejectsMaskedLengthOverflow(t *testing.T) {
	buf := make([]byte, wire.HeaderPrefixSize)
	buf[0] = 0x82 // FIN, binary
	buf[1] = 127
	buf[2] = 0x80 // top bit of the 64-bit length set
	if _, err := wire.ParseHeader(buf); err == nil {
		t.Fatal("expected error for length7=127 with MSB set")
	}
}

func TestParseRejectsFragmentedControlFrame(t *testing.T) {
	buf := make([]byte, wire.HeaderPrefixSize)
	buf[0] = 0x08 // FIN=0, close
	buf[1] = 0
	if _, err := wire.ParseHeader(buf); err == nil {
		t.Fatal("expected error for non-final control frame")
	}
}

func TestClientMaskExampleFromSpec(t *testing.T) {
	// Client sends text "Hi" (0x48 0x69) masked with key 0x37FA213D.
	// Expected wire bytes: 81 82 37 FA 21 3D 7F 93
	h := wire.FrameHeader{Final: true, Opcode: wire.OpText, PayloadLen: 2, Masked: true,
		MaskKey: [4]byte{0x37, 0xFA, 0x21, 0x3D}}
	buf := make([]byte, wire.HeaderPrefixSize+2)
	off, err := wire.EmitHeader(h, buf)
	if err != nil {
		t.Fatal(err)
	}
	payload := buf[wire.HeaderPrefixSize:]
	copy(payload, []byte("Hi"))
	wire.MaskBytes(payload, h.MaskKey, 0)

	wireBytes := buf[off:]
	want := []byte{0x81, 0x82, 0x37, 0xFA, 0x21, 0x3D, 0x7F, 0x93}
	if !bytes.Equal(wireBytes, want) {
		t.Fatalf("wire bytes = % x, want % x", wireBytes, want)
	}
}

func TestMaskInvolution(t *testing.T) {
	key := [4]byte{9, 8, 7, 6}
	data := []byte("the quick brown fox jumps over")
	orig := append([]byte(nil), data...)
	wire.MaskBytes(data, key, 3)
	wire.MaskBytes(data, key, 3)
	if !bytes.Equal(data, orig) {
		t.Fatal("mask is not its own inverse at nonzero stream position")
	}
}
