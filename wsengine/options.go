// File: wsengine/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Functional options for configuring a single Connection at
// construction time.

package wsengine

import (
	"log"
	"time"
)

// PingMode selects which ping.Handler strategy the connection builds.
type PingMode int

const (
	PingManual PingMode = iota
	PingLatencyControl
	PingBandwidthSaving
)

// Logger is the log sink the engine calls into for log-and-swallow
// situations (handler panics, best-effort I/O failures during the
// close handshake). The stdlib *log.Logger satisfies it directly.
type Logger interface {
	Printf(format string, args ...any)
}

// Options is an immutable snapshot the Connection is constructed
// with.
type Options struct {
	PingMode       PingMode
	PingInterval   time.Duration
	PingTimeout    time.Duration // negative = infinite
	SendBufferSize int
	Logger         Logger
}

// Option customizes Options during construction.
type Option func(*Options)

// defaultOptions mirrors reasonable production defaults; any field an
// Option doesn't touch keeps these values.
func defaultOptions() Options {
	return Options{
		PingMode:       PingLatencyControl,
		PingInterval:   30 * time.Second,
		PingTimeout:    -1,
		SendBufferSize: 4096,
		Logger:         log.Default(),
	}
}

// WithPingMode selects the liveness strategy.
func WithPingMode(m PingMode) Option {
	return func(o *Options) { o.PingMode = m }
}

// WithPingInterval sets how long after the last inbound activity
// LatencyControl keeps pinging best-effort (non-blocking permit attempt)
// and BandwidthSaving skips its ping; past the interval both send
// normally.
func WithPingInterval(d time.Duration) Option {
	return func(o *Options) { o.PingInterval = d }
}

// WithPingTimeout sets the silence duration after which a ping
// handler disposes the connection or initiates a graceful close.
// Negative means infinite.
func WithPingTimeout(d time.Duration) Option {
	return func(o *Options) { o.PingTimeout = d }
}

// WithSendBufferSize overrides the default outbound data buffer size.
func WithSendBufferSize(n int) Option {
	return func(o *Options) { o.SendBufferSize = n }
}

// WithLogger overrides the default stdlib logger.
func WithLogger(l Logger) Option {
	return func(o *Options) { o.Logger = l }
}
