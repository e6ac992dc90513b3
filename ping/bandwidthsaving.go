// File: ping/bandwidthsaving.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ping

import (
	"context"
	"sync"
	"time"

	"github.com/momentics/wsengine/wire"
)

// BandwidthSaving is Manual's quieter sibling: it sends an empty
// payload, skips the send entirely when traffic is still fresh
// (within pingInterval), and is meant to be configured with longer
// intervals than LatencyControl or Manual.
type BandwidthSaving struct {
	conn         Conn
	pingInterval time.Duration
	pingTimeout  time.Duration

	mu           sync.Mutex
	lastActivity time.Time
	lastPong     time.Time
}

// NewBandwidthSaving constructs a BandwidthSaving handler bound to conn.
func NewBandwidthSaving(conn Conn, pingInterval, pingTimeout time.Duration) *BandwidthSaving {
	now := time.Now()
	return &BandwidthSaving{
		conn:         conn,
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
		lastActivity: now,
		lastPong:     now,
	}
}

// NotifyActivity records the time of any inbound header receipt.
func (h *BandwidthSaving) NotifyActivity() {
	h.mu.Lock()
	h.lastActivity = time.Now()
	h.mu.Unlock()
}

// NotifyPong stops the pong timer.
func (h *BandwidthSaving) NotifyPong(payload []byte) {
	h.mu.Lock()
	h.lastPong = time.Now()
	h.mu.Unlock()
}

// Ping closes the connection if no pong arrived within pingTimeout,
// otherwise sends an empty ping only when the link has gone quiet
// for at least pingInterval.
func (h *BandwidthSaving) Ping(ctx context.Context) error {
	h.mu.Lock()
	lastActivity, lastPong := h.lastActivity, h.lastPong
	h.mu.Unlock()

	now := time.Now()
	if h.pingTimeout >= 0 && now.Sub(lastPong) > h.pingTimeout {
		return h.conn.Close(ctx, wire.CloseGoingAway)
	}
	if now.Sub(lastActivity) < h.pingInterval {
		return nil
	}
	return h.conn.SendPing(ctx, nil, LockWait)
}
