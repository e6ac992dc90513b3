// File: ping/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package ping implements the three pluggable liveness strategies the
// connection engine can drive: Manual, LatencyControl, and
// BandwidthSaving. All three share the small Handler interface;
// selection happens once, at connection construction.
//
// A tick-driven keepalive ticker feeds Ping calls from outside; the
// receive loop feeds NotifyActivity/NotifyPong as frames arrive.
package ping

import "context"

// LockTiming selects how a ping send acquires the connection's write
// permit: Wait blocks indefinitely, Try degrades to a non-blocking
// attempt and skips the send if the permit is contended.
type LockTiming int

const (
	LockWait LockTiming = iota
	LockTry
)

// Conn is the slice of connection capability a ping Handler needs.
// wsengine.Connection implements this; defining it here (rather than
// importing wsengine) keeps ping free of a dependency cycle.
type Conn interface {
	// SendPing transmits a ping frame carrying payload, using lt to
	// decide how to acquire the write permit. No-op (returns nil)
	// if the connection can no longer send.
	SendPing(ctx context.Context, payload []byte, lt LockTiming) error

	// Close initiates the closing handshake with the given status code.
	Close(ctx context.Context, code uint16) error

	// Dispose tears the connection down immediately.
	Dispose()

	// SetLatency records the last measured round-trip estimate.
	SetLatency(d Latency)
}

// Handler is the capability the connection engine calls into: once on
// construction to pick a strategy, then on every inbound header
// (NotifyActivity), every inbound pong (NotifyPong), and every
// external scheduler tick (Ping).
type Handler interface {
	Ping(ctx context.Context) error
	NotifyActivity()
	NotifyPong(payload []byte)
}
