// File: ping/manual.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ping

import (
	"context"
	"sync"
	"time"

	"github.com/momentics/wsengine/wire"
)

// Manual sends whatever payload external code has staged via Stage.
// If no pong has arrived within pingTimeout it initiates a graceful
// close with reason "Going Away". A negative pingTimeout means
// infinite (never times out).
type Manual struct {
	conn        Conn
	pingTimeout time.Duration

	mu       sync.Mutex
	payload  []byte
	lastPong time.Time
}

// NewManual constructs a Manual handler bound to conn.
func NewManual(conn Conn, pingTimeout time.Duration) *Manual {
	return &Manual{conn: conn, pingTimeout: pingTimeout, lastPong: time.Now()}
}

// Stage records the payload (0..125 bytes) the next Ping call sends.
func (h *Manual) Stage(payload []byte) {
	h.mu.Lock()
	h.payload = append(h.payload[:0], payload...)
	h.mu.Unlock()
}

// NotifyActivity is a no-op: Manual's timer tracks pongs, not generic
// inbound traffic.
func (h *Manual) NotifyActivity() {}

// Ping sends the staged payload, or closes the connection if the peer
// has not answered within pingTimeout.
func (h *Manual) Ping(ctx context.Context) error {
	h.mu.Lock()
	lastPong := h.lastPong
	payload := append([]byte(nil), h.payload...)
	h.mu.Unlock()

	if h.pingTimeout >= 0 && time.Since(lastPong) > h.pingTimeout {
		return h.conn.Close(ctx, wire.CloseGoingAway)
	}
	return h.conn.SendPing(ctx, payload, LockWait)
}

// NotifyPong stops the pong timer.
func (h *Manual) NotifyPong(payload []byte) {
	h.mu.Lock()
	h.lastPong = time.Now()
	h.mu.Unlock()
}
