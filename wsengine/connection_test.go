// File: wsengine/connection_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wsengine

import (
	"context"
	"testing"
	"time"

	"github.com/momentics/wsengine/ping"
	"github.com/momentics/wsengine/transport"
	"github.com/momentics/wsengine/wire"
	"github.com/momentics/wsengine/wsbuf"
)

func newPair(t *testing.T, client, server bool) (*Connection, *Connection) {
	t.Helper()
	a, b := transport.NewPipePair()
	pool := wsbuf.NewPool()
	cc, err := New(a, pool, client, WithPingMode(PingManual))
	if err != nil {
		t.Fatalf("client New: %v", err)
	}
	sc, err := New(b, pool, server, WithPingMode(PingManual))
	if err != nil {
		t.Fatalf("server New: %v", err)
	}
	t.Cleanup(func() {
		cc.Dispose()
		sc.Dispose()
	})
	return cc, sc
}

func TestSendReceiveTextFrame(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, server := newPair(t, true, false)

	go func() {
		client.Send(ctx, []byte("Hi"), true, wire.OpText)
	}()

	if err := server.AwaitHeader(ctx); err != nil {
		t.Fatalf("AwaitHeader: %v", err)
	}
	hdr, ok := server.CurrentHeader()
	if !ok || hdr.Opcode != wire.OpText || !hdr.Final {
		t.Fatalf("unexpected header: %+v ok=%v", hdr, ok)
	}
	buf := make([]byte, 2)
	n, err := server.Receive(ctx, buf)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if n != 2 || string(buf) != "Hi" {
		t.Fatalf("got %q, want %q", buf[:n], "Hi")
	}
}

func TestFragmentedBinaryMessage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, server := newPair(t, true, false)

	go func() {
		client.Send(ctx, []byte{0x01, 0x02}, false, wire.OpBinary)
		client.Send(ctx, []byte{0x03, 0x04}, true, wire.OpContinuation)
	}()

	var got []byte
	for i := 0; i < 2; i++ {
		if err := server.AwaitHeader(ctx); err != nil {
			t.Fatalf("AwaitHeader %d: %v", i, err)
		}
		buf := make([]byte, 2)
		n, err := server.Receive(ctx, buf)
		if err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
		got = append(got, buf[:n]...)
	}
	if len(got) != 4 || got[0] != 1 || got[3] != 4 {
		t.Fatalf("got %v", got)
	}
}

func TestInterleavedPingDuringReceive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, server := newPair(t, true, false)

	go func() {
		client.Ping(ctx, []byte("probe"))
		client.Send(ctx, []byte("ok"), true, wire.OpText)
	}()

	// The server replies to the inline ping with a pong; drain it on
	// the client side so that reply's Write doesn't block forever.
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer drainCancel()
	go client.AwaitHeader(drainCtx)

	if err := server.AwaitHeader(ctx); err != nil {
		t.Fatalf("AwaitHeader: %v", err)
	}
	hdr, _ := server.CurrentHeader()
	if hdr.Opcode != wire.OpText {
		t.Fatalf("expected text frame after inline ping handling, got %v", hdr.Opcode)
	}
}

func TestGracefulCloseFromPeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, server := newPair(t, true, false)

	go func() {
		client.Close(ctx, wire.CloseNormalClosure)
	}()

	err := server.AwaitHeader(ctx)
	if err != ErrConnectionClosed {
		t.Fatalf("AwaitHeader after peer close: got %v, want ErrConnectionClosed", err)
	}
	if server.state.load() != CloseReceived {
		t.Fatalf("expected server state CloseReceived, got %v", server.state.load())
	}
	reason, ok := server.CloseReason()
	if !ok || reason != wire.CloseNormalClosure {
		t.Fatalf("expected close reason NormalClosure, got %v ok=%v", reason, ok)
	}
}

func TestPingTimeoutDisposesConnection(t *testing.T) {
	a, b := transport.NewPipePair()
	pool := wsbuf.NewPool()
	conn, err := New(a, pool, true, WithPingMode(PingLatencyControl), WithPingTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	time.Sleep(20 * time.Millisecond)
	if err := conn.Ping(context.Background(), nil); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !conn.IsClosed() {
		t.Fatalf("expected connection disposed after ping timeout")
	}
	if lat, ok := conn.Latency(); !ok || !lat.IsInfinite() {
		t.Fatalf("expected infinite latency after timeout, got %v ok=%v", lat, ok)
	}
}

func TestMaskedLengthOverflowClosesWithProtocolError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	writer, victimTransport := transport.NewPipePair()
	// FIN=1, opcode=binary, MASK=1, length7=127 (8-byte extended length
	// follows) whose top bit is set — an invalid, oversized 64-bit
	// length per RFC 6455 — followed by a 4-byte mask key.
	raw := []byte{0x82, 0xFF, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	go writer.Write(ctx, raw)

	pool := wsbuf.NewPool()
	victim, err := New(victimTransport, pool, false, WithPingMode(PingManual))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer victim.Dispose()

	// The victim answers with a close frame; read it on the writer side
	// so the victim's write over the unbuffered pipe can complete.
	closeFrame := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4)
		n, _ := writer.Read(ctx, buf)
		closeFrame <- buf[:n]
	}()

	err = victim.AwaitHeader(ctx)
	if err == nil {
		t.Fatal("expected ProtocolError on masked-length overflow")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindProtocol {
		t.Fatalf("expected ProtocolError on masked-length overflow, got %v", err)
	}
	select {
	case got := <-closeFrame:
		if len(got) != 4 || got[0] != 0x88 || uint16(got[2])<<8|uint16(got[3]) != wire.CloseProtocolError {
			t.Fatalf("expected close frame with code 1002, got % x", got)
		}
	case <-ctx.Done():
		t.Fatal("no close frame written after masked-length overflow")
	}
}

var _ = ping.InfiniteLatency
