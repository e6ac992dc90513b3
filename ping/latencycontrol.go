// File: ping/latencycontrol.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ping

import (
	"context"
	"encoding/binary"
	"sync"
	"time"
)

// LatencyControl pings with the current timestamp as payload and
// derives round-trip latency from the echoed pong. A negative
// pingTimeout means infinite (never times out).
type LatencyControl struct {
	conn         Conn
	pingInterval time.Duration
	pingTimeout  time.Duration

	mu           sync.Mutex
	lastActivity time.Time
}

// NewLatencyControl constructs a LatencyControl handler bound to conn.
func NewLatencyControl(conn Conn, pingInterval, pingTimeout time.Duration) *LatencyControl {
	return &LatencyControl{
		conn:         conn,
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
		lastActivity: time.Now(),
	}
}

// NotifyActivity records the time of any inbound header receipt.
func (h *LatencyControl) NotifyActivity() {
	h.mu.Lock()
	h.lastActivity = time.Now()
	h.mu.Unlock()
}

// Ping disposes the connection if the peer has been silent for more
// than pingTimeout; otherwise it sends a timestamped ping, using a
// non-blocking write-permit attempt once traffic is still fresh
// (within pingInterval) so a contended writer never stalls the
// scheduler tick.
func (h *LatencyControl) Ping(ctx context.Context) error {
	h.mu.Lock()
	last := h.lastActivity
	h.mu.Unlock()

	now := time.Now()
	if h.pingTimeout >= 0 && now.Sub(last) > h.pingTimeout {
		h.conn.SetLatency(InfiniteLatency)
		h.conn.Dispose()
		return nil
	}

	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, uint64(now.UnixNano()))

	lt := LockWait
	if now.Sub(last) < h.pingInterval {
		lt = LockTry
	}
	return h.conn.SendPing(ctx, payload, lt)
}

// NotifyPong records half the round trip as the measured latency.
func (h *LatencyControl) NotifyPong(payload []byte) {
	if len(payload) < 8 {
		return
	}
	sent := int64(binary.LittleEndian.Uint64(payload))
	delta := time.Now().UnixNano() - sent
	h.conn.SetLatency(Latency(time.Duration(delta) / 2))
}
