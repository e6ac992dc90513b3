// File: wsengine/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection orchestrates the receive loop, inline control-frame
// handling, send serialization, ping invocation, and teardown for a
// single full-duplex RFC 6455 session.
//
// The receive side is caller-driven rather than goroutine-driven:
// AwaitHeader blocks only on transport I/O, handling any control
// frames it meets inline before returning the next data header. The
// send side serializes all writers — application Send, inline pong
// replies, Close, and ping frames alike — through one permit so
// wire bytes from two logical frames are never interleaved.

package wsengine

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/wsengine/ping"
	"github.com/momentics/wsengine/transport"
	"github.com/momentics/wsengine/wire"
	"github.com/momentics/wsengine/wsbuf"
)

// sendFlags mirrors spec.md's NoLock / IgnoreClose / NoErrors
// send-frame options.
type sendFlags struct {
	NoLock      bool
	IgnoreClose bool
	NoErrors    bool
}

// Connection is a full-duplex RFC 6455 session over one Transport.
type Connection struct {
	transport transport.Transport
	opts      Options
	pool      wsbuf.BufferPool

	ctrlBuf wsbuf.Buffer
	sendBuf wsbuf.Buffer
	ctrl    wsbuf.Layout
	send    wsbuf.SendLayout

	permit chan struct{} // capacity-1 write-exclusion permit

	pingHandler ping.Handler

	reading int32 // CAS guard: at most one AwaitHeader in flight
	writing int32 // CAS guard: at most one app-level Send in flight

	state closeStateVar

	mu            sync.Mutex
	currentHeader *wire.FrameHeader
	closeReason   *uint16
	latency       ping.Latency

	maskOutbound bool // true on the client side
}

// New constructs a Connection around an already-open transport. client
// selects the masking role: true masks outbound frames (client side),
// false sends them unmasked (server side).
func New(tr transport.Transport, pool wsbuf.BufferPool, client bool, opts ...Option) (*Connection, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.SendBufferSize < wire.HeaderPrefixSize+1 {
		return nil, newErr(KindState, "send buffer size too small to hold a header and a payload byte", nil)
	}

	ctrlBuf := pool.Take(wsbuf.PooledSize)
	sendBuf := pool.Take(o.SendBufferSize)

	c := &Connection{
		transport:    tr,
		opts:         o,
		pool:         pool,
		ctrlBuf:      ctrlBuf,
		sendBuf:      sendBuf,
		ctrl:         wsbuf.Carve(ctrlBuf.Bytes()),
		send:         wsbuf.NewSendLayout(sendBuf.Bytes()),
		permit:       make(chan struct{}, 1),
		maskOutbound: client,
		latency:      ping.InfiniteLatency,
	}
	c.permit <- struct{}{}

	switch o.PingMode {
	case PingManual:
		c.pingHandler = ping.NewManual(c, o.PingTimeout)
	case PingBandwidthSaving:
		c.pingHandler = ping.NewBandwidthSaving(c, o.PingInterval, o.PingTimeout)
	default:
		c.pingHandler = ping.NewLatencyControl(c, o.PingInterval, o.PingTimeout)
	}
	return c, nil
}

// ---- observable properties ----

// CurrentHeader returns the header of the data frame currently being
// delivered to the caller through Receive, if any.
func (c *Connection) CurrentHeader() (wire.FrameHeader, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentHeader == nil {
		return wire.FrameHeader{}, false
	}
	return *c.currentHeader, true
}

// CloseReason returns the status code carried by the close frame that
// moved this connection out of Open, if one has been observed yet.
func (c *Connection) CloseReason() (uint16, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeReason == nil {
		return 0, false
	}
	return *c.closeReason, true
}

// Latency returns the last RTT/2 estimate. Only meaningful under
// LatencyControl; ok is false under any other ping mode.
func (c *Connection) Latency() (d ping.Latency, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.PingMode != PingLatencyControl {
		return 0, false
	}
	return c.latency, true
}

// CanSend reports whether the close state machine still permits
// outbound frames.
func (c *Connection) CanSend() bool { return canSend(c.state.load()) }

// CanReceive reports whether the close state machine still permits
// inbound frames.
func (c *Connection) CanReceive() bool { return canReceive(c.state.load()) }

// IsClosed reports whether the connection has reached Closed or
// Disposed.
func (c *Connection) IsClosed() bool {
	s := c.state.load()
	return s == Closed || s == Disposed
}

// ---- receive path ----

// AwaitHeader advances the receive side to the start of the next
// caller-visible data frame, consuming and fully handling any control
// frames interleaved ahead of it.
func (c *Connection) AwaitHeader(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&c.reading, 0, 1) {
		return ErrAlreadyReading
	}
	releaseOnce := sync.Once{}
	release := func() { releaseOnce.Do(func() { atomic.StoreInt32(&c.reading, 0) }) }

	for {
		if c.state.load() == Disposed {
			release()
			return ErrConnectionClosed
		}

		c.mu.Lock()
		pending := c.currentHeader != nil && c.currentHeader.Remaining != 0
		c.mu.Unlock()
		if pending {
			release()
			return ErrFrameNotFinished
		}

		hdr2 := c.ctrl.HeaderScratch[:2]
		if err := c.readFull(ctx, hdr2); err != nil {
			release()
			return c.failAwait(ctx, err, false)
		}

		full := wire.HeaderLength(hdr2[0], hdr2[1])
		if full > 2 {
			if err := c.readFull(ctx, c.ctrl.HeaderScratch[2:full]); err != nil {
				release()
				return c.failAwait(ctx, err, false)
			}
		}

		h, err := wire.ParseHeader(c.ctrl.HeaderScratch[:full])
		if err != nil {
			release()
			return c.failAwait(ctx, err, true)
		}

		if h.Opcode.IsControl() {
			if err := c.processControl(ctx, h); err != nil {
				release()
				return err
			}
			if h.Opcode == wire.OpClose {
				release()
				return ErrConnectionClosed
			}
			continue
		}

		hc := h
		c.mu.Lock()
		c.currentHeader = &hc
		c.mu.Unlock()
		release()
		return nil
	}
}

// failAwait converts a read/parse failure into a Protocol Error close
// and a wrapped error, unless err has already been reported upstream.
func (c *Connection) failAwait(ctx context.Context, err error, isParseErr bool) error {
	if alreadyReported(err) {
		return err
	}
	c.initiateCloseBestEffort(wire.CloseProtocolError)
	kind := KindTransport
	if isParseErr {
		kind = KindProtocol
	}
	return newErr(kind, "await-header failed", err)
}

// Receive reads up to len(dst) bytes of the current data frame's
// payload into dst, unmasking in place, and decrements the current
// header's Remaining counter.
func (c *Connection) Receive(ctx context.Context, dst []byte) (int, error) {
	c.mu.Lock()
	h := c.currentHeader
	c.mu.Unlock()
	if h == nil {
		return 0, ErrNoCurrentHeader
	}

	want := len(dst)
	if int64(want) > h.Remaining {
		want = int(h.Remaining)
	}
	if want == 0 {
		return 0, nil
	}

	n, err := c.transport.Read(ctx, dst[:want])
	if err != nil {
		if alreadyReported(err) {
			return n, err
		}
		c.initiateCloseBestEffort(wire.CloseInternalServerErr)
		return n, newErr(KindTransport, "receive failed", err)
	}

	if h.Masked && n > 0 {
		streamPos := h.PayloadLen - h.Remaining
		wire.MaskBytes(dst[:n], h.MaskKey, streamPos)
	}

	c.mu.Lock()
	h.Remaining -= int64(n)
	c.mu.Unlock()
	c.disposeHeaderIfFinished()
	return n, nil
}

// disposeHeaderIfFinished clears CurrentHeader once its payload has
// been fully delivered.
func (c *Connection) disposeHeaderIfFinished() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentHeader == nil {
		return
	}
	switch {
	case c.currentHeader.Remaining == 0:
		c.currentHeader = nil
	case c.currentHeader.Remaining < 0:
		panic("wsengine: bug: header remaining went negative")
	}
}

// readFull reads exactly len(buf) bytes, treating a mid-read
// half-close (n==0, err==nil) as io.ErrUnexpectedEOF-equivalent.
func (c *Connection) readFull(ctx context.Context, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := c.transport.Read(ctx, buf[total:])
		total += n
		if err != nil {
			return err
		}
		if n == 0 {
			return newErr(KindTransport, "transport ended", nil)
		}
	}
	return nil
}

// ---- control-frame handling ----

func (c *Connection) processControl(ctx context.Context, h wire.FrameHeader) error {
	switch h.Opcode {
	case wire.OpClose:
		return c.handleCloseFrame(ctx, h)
	case wire.OpPing:
		return c.handlePingFrame(ctx, h)
	case wire.OpPong:
		return c.handlePongFrame(ctx, h)
	default:
		return newErr(KindProtocol, "data opcode encountered in control-frame path", nil)
	}
}

func (c *Connection) handleCloseFrame(ctx context.Context, h wire.FrameHeader) error {
	code := uint16(wire.CloseNormalClosure)
	if h.PayloadLen >= 2 {
		buf := c.ctrl.InClose[:2]
		if err := c.readPayload(ctx, &h, buf); err != nil {
			return c.transportFail(err)
		}
		code = binary.BigEndian.Uint16(buf)
	} else if h.PayloadLen == 1 {
		// Drain the stray byte; still default to Normal Close.
		buf := c.ctrl.InClose[:1]
		_ = c.readPayload(ctx, &h, buf)
	}

	c.mu.Lock()
	reason := code
	c.closeReason = &reason
	c.mu.Unlock()

	newState, _ := c.state.observePeerClose()
	if newState == Closed {
		c.transport.Close()
	}
	c.notifyActivitySwallow()
	return nil
}

func (c *Connection) handlePingFrame(ctx context.Context, h wire.FrameHeader) error {
	n := int(h.PayloadLen)
	if n > wire.MaxControlPayload {
		n = wire.MaxControlPayload
	}
	buf := c.ctrl.InPing[:n]
	if err := c.readPayload(ctx, &h, buf); err != nil {
		return c.transportFail(err)
	}

	c.sendFrame(ctx, func() ([]byte, error) {
		return c.prepareControlFrame(buf, wire.OpPong)
	}, -1, sendFlags{NoErrors: true})
	c.notifyActivitySwallow()
	return nil
}

func (c *Connection) handlePongFrame(ctx context.Context, h wire.FrameHeader) error {
	n := int(h.PayloadLen)
	if n > wire.MaxControlPayload {
		n = wire.MaxControlPayload
	}
	buf := c.ctrl.InPong[:n]
	if err := c.readPayload(ctx, &h, buf); err != nil {
		return c.transportFail(err)
	}
	c.safeNotifyPong(buf)
	c.notifyActivitySwallow()
	return nil
}

func (c *Connection) readPayload(ctx context.Context, h *wire.FrameHeader, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if err := c.readFull(ctx, dst); err != nil {
		return err
	}
	if h.Masked {
		wire.MaskBytes(dst, h.MaskKey, 0)
	}
	return nil
}

func (c *Connection) transportFail(err error) error {
	if alreadyReported(err) {
		return err
	}
	c.initiateCloseBestEffort(wire.CloseInternalServerErr)
	return newErr(KindTransport, "unexpected condition", err)
}

func (c *Connection) notifyActivitySwallow() {
	defer func() {
		if r := recover(); r != nil {
			c.opts.Logger.Printf("wsengine: ping handler NotifyActivity panicked: %v", r)
		}
	}()
	c.pingHandler.NotifyActivity()
}

func (c *Connection) safeNotifyPong(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.Logger.Printf("wsengine: ping handler NotifyPong panicked: %v", r)
		}
	}()
	c.pingHandler.NotifyPong(payload)
}

// ---- send path ----

// BeginWrite acquires the single-app-writer guard; pair with EndWrite.
func (c *Connection) BeginWrite() error {
	if !atomic.CompareAndSwapInt32(&c.writing, 0, 1) {
		return ErrAlreadyWriting
	}
	return nil
}

// EndWrite releases the guard acquired by BeginWrite.
func (c *Connection) EndWrite() {
	atomic.StoreInt32(&c.writing, 0)
}

// Send frames payload as a single data frame (opcode text or binary,
// or continuation for a later fragment) and writes it to the
// transport under the write permit.
func (c *Connection) Send(ctx context.Context, payload []byte, final bool, opcode wire.Opcode) error {
	if err := c.BeginWrite(); err != nil {
		return err
	}
	defer c.EndWrite()

	if len(payload) > len(c.send.Payload()) {
		return newErr(KindState, "payload exceeds the configured send buffer size", nil)
	}

	_, err := c.sendFrame(ctx, func() ([]byte, error) {
		room := c.send.Payload()[:len(payload)]
		copy(room, payload)
		return c.prepareDataFrame(room, final, opcode)
	}, -1, sendFlags{})
	return err
}

// prepareFrame emits h's header into buf's reserved 16-byte prefix
// and masks buf[16:16+h.PayloadLen] in place, returning the
// contiguous header+payload slice ready for the wire.
func (c *Connection) prepareFrame(buf []byte, h wire.FrameHeader) ([]byte, error) {
	off, err := wire.EmitHeader(h, buf)
	if err != nil {
		return nil, err
	}
	payload := buf[16 : 16+h.PayloadLen]
	if h.Masked {
		wire.MaskBytes(payload, h.MaskKey, 0)
	}
	return buf[off : 16+int(h.PayloadLen)], nil
}

// prepareControlFrame copies payload (truncated to MaxControlPayload)
// into the shared OutControl staging slot and builds the frame on top
// of it. Callers must only invoke this while holding the write permit:
// OutControl is shared by every control-frame producer (inline pong
// replies, outbound pings, and Close), so staging into it outside the
// permit would let two producers corrupt each other's header/payload.
func (c *Connection) prepareControlFrame(payload []byte, opcode wire.Opcode) ([]byte, error) {
	n := len(payload)
	if n > wire.MaxControlPayload {
		n = wire.MaxControlPayload
	}
	dst := c.ctrl.OutControl[16 : 16+n]
	copy(dst, payload[:n])

	h := wire.FrameHeader{Final: true, Opcode: opcode, PayloadLen: int64(n)}
	if c.maskOutbound {
		h.Masked = true
		h.MaskKey = randomMaskKey()
	}
	buf := c.ctrl.OutControl[:16+n]
	return c.prepareFrame(buf, h)
}

func (c *Connection) prepareDataFrame(payload []byte, final bool, opcode wire.Opcode) ([]byte, error) {
	h := wire.FrameHeader{Final: final, Opcode: opcode, PayloadLen: int64(len(payload))}
	if c.maskOutbound {
		h.Masked = true
		h.MaskKey = randomMaskKey()
	}
	buf := c.send.Raw()[:16+len(payload)]
	return c.prepareFrame(buf, h)
}

// sendFrame acquires the write permit (unless flags.NoLock), then runs
// prepare to build the outbound frame, then writes it to the
// transport. prepare is deliberately called only once the permit is
// held: callers that stage their frame into a buffer shared across
// producers (prepareControlFrame's OutControl slot) depend on that
// ordering for correctness, not just for wire-level interleaving.
// Guarded by the close-state check unless flags.IgnoreClose.
// flags.NoErrors swallows failures (returning ok == false, err == nil)
// instead of propagating them.
func (c *Connection) sendFrame(ctx context.Context, prepare func() ([]byte, error), lockTimeout time.Duration, flags sendFlags) (ok bool, err error) {
	if !flags.IgnoreClose && !canSend(c.state.load()) {
		if flags.NoErrors {
			return false, nil
		}
		return false, ErrConnectionClosed
	}

	if !flags.NoLock {
		if acqErr := c.acquirePermit(ctx, lockTimeout); acqErr != nil {
			if flags.NoErrors {
				return false, nil
			}
			return false, acqErr
		}
		defer c.releasePermit()
	}

	slice, perr := prepare()
	if perr != nil {
		if flags.NoErrors {
			return false, nil
		}
		return false, newErr(KindProtocol, "prepare frame failed", perr)
	}

	if werr := c.writeAll(ctx, slice); werr != nil {
		if !flags.IgnoreClose {
			c.initiateCloseBestEffort(wire.CloseInternalServerErr)
		}
		if flags.NoErrors {
			return false, nil
		}
		if alreadyReported(werr) {
			return false, werr
		}
		return false, newErr(KindTransport, "send frame failed", werr)
	}

	if ferr := c.transport.Flush(ctx); ferr != nil {
		if flags.NoErrors {
			return false, nil
		}
		if alreadyReported(ferr) {
			return false, ferr
		}
		return false, newErr(KindTransport, "flush failed", ferr)
	}

	return true, nil
}

func (c *Connection) writeAll(ctx context.Context, buf []byte) error {
	for len(buf) > 0 {
		n, err := c.transport.Write(ctx, buf)
		buf = buf[n:]
		if err != nil {
			return err
		}
	}
	return nil
}

// acquirePermit acquires the write-exclusion permit. timeout == 0 is
// a single non-blocking attempt; timeout < 0 waits indefinitely
// (bounded only by ctx); timeout > 0 waits up to that duration.
func (c *Connection) acquirePermit(ctx context.Context, timeout time.Duration) error {
	if timeout == 0 {
		select {
		case <-c.permit:
			return nil
		default:
			return ErrWritePermitContended
		}
	}
	if timeout < 0 {
		select {
		case <-c.permit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.permit:
		return nil
	case <-timer.C:
		return ErrWritePermitContended
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) releasePermit() {
	select {
	case c.permit <- struct{}{}:
	default:
	}
}

func randomMaskKey() [4]byte {
	var key [4]byte
	for {
		if _, err := rand.Read(key[:]); err != nil {
			continue
		}
		if key != ([4]byte{}) {
			return key
		}
	}
}

// ---- close & dispose ----

// Close initiates or completes the closing handshake with the given
// RFC 6455 status code. A no-op if the close state machine has
// already left Open/CloseReceived in the local-close direction.
func (c *Connection) Close(ctx context.Context, code uint16) error {
	newState, transitioned := c.state.initiateLocalClose()
	if !transitioned {
		return nil
	}

	var payload [2]byte
	binary.BigEndian.PutUint16(payload[:], code)
	c.sendFrame(ctx, func() ([]byte, error) {
		return c.prepareControlFrame(payload[:], wire.OpClose)
	}, -1, sendFlags{IgnoreClose: true, NoErrors: true})

	if newState == Closed {
		return c.transport.Close()
	}
	return nil
}

func (c *Connection) initiateCloseBestEffort(code uint16) {
	_ = c.Close(context.Background(), code)
}

// Ping drives one liveness tick. If the configured strategy is
// Manual, data is staged as the next ping's payload first. A no-op if
// the close state no longer permits sends.
func (c *Connection) Ping(ctx context.Context, data []byte) error {
	if !canSend(c.state.load()) {
		return nil
	}
	if m, ok := c.pingHandler.(*ping.Manual); ok {
		m.Stage(data)
	}
	return c.pingHandler.Ping(ctx)
}

// SendPing implements ping.Conn: transmit a ping frame under the
// requested lock timing.
func (c *Connection) SendPing(ctx context.Context, payload []byte, lt ping.LockTiming) error {
	if !canSend(c.state.load()) {
		return nil
	}
	var timeout time.Duration = -1
	if lt == ping.LockTry {
		timeout = 0
	}
	_, err := c.sendFrame(ctx, func() ([]byte, error) {
		return c.prepareControlFrame(payload, wire.OpPing)
	}, timeout, sendFlags{})
	return err
}

// SetLatency implements ping.Conn.
func (c *Connection) SetLatency(d ping.Latency) {
	c.mu.Lock()
	c.latency = d
	c.mu.Unlock()
}

// Dispose tears the connection down: releases both pooled buffers,
// closes the transport, and marks latency infinite. Idempotent.
func (c *Connection) Dispose() {
	if !c.state.dispose() {
		return
	}
	c.mu.Lock()
	c.latency = ping.InfiniteLatency
	c.mu.Unlock()
	c.transport.Close()
	c.pool.Return(c.ctrlBuf)
	c.pool.Return(c.sendBuf)
}
