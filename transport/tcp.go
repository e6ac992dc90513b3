// File: transport/tcp.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP wraps a net.Conn as a Transport, folding context cancellation
// into the adapter itself via deadlines so every caller of Transport
// gets real ctx cancellation without needing to know the concrete
// connection type underneath.

package transport

import (
	"context"
	"net"
	"time"
)

var (
	zeroTime time.Time
	pastTime = time.Unix(1, 0)
)

// TCP is a Transport backed by a net.Conn (TCP, Unix, or TLS).
type TCP struct {
	conn net.Conn
}

// NewTCP wraps an already-established net.Conn.
func NewTCP(conn net.Conn) *TCP {
	return &TCP{conn: conn}
}

// Read reads into dst, honoring ctx cancellation via the net.Conn
// deadline mechanism and a watcher goroutine for context.Cancel
// (which has no direct net.Conn equivalent).
func (t *TCP) Read(ctx context.Context, dst []byte) (int, error) {
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetReadDeadline(deadline)
	} else {
		t.conn.SetReadDeadline(zeroTime)
	}
	done := make(chan struct{})
	defer close(done)
	go t.cancelWatcher(ctx, done)
	return t.conn.Read(dst)
}

// Write writes src, honoring ctx the same way Read does.
func (t *TCP) Write(ctx context.Context, src []byte) (int, error) {
	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetWriteDeadline(deadline)
	} else {
		t.conn.SetWriteDeadline(zeroTime)
	}
	done := make(chan struct{})
	defer close(done)
	go t.cancelWatcher(ctx, done)
	return t.conn.Write(src)
}

// cancelWatcher unblocks an in-flight Read/Write by forcing an
// immediate deadline if ctx is canceled before the I/O completes.
func (t *TCP) cancelWatcher(ctx context.Context, done chan struct{}) {
	select {
	case <-ctx.Done():
		t.conn.SetDeadline(pastTime)
	case <-done:
	}
}

// Flush is a no-op: net.Conn has no distinct flush step.
func (t *TCP) Flush(ctx context.Context) error { return nil }

// Close shuts down the underlying connection.
func (t *TCP) Close() error { return t.conn.Close() }
