// File: wsengine/closestate.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The four-state closing handshake, as a single atomically-transitioned
// integer. A single int32 and CompareAndSwapInt32 are enough to make
// every transition lock-free and race-free under concurrent Close,
// peer-close observation, and Dispose calls.

package wsengine

import "sync/atomic"

// CloseState is monotonic: once it reaches Closed it never regresses,
// and once Disposed no further operation succeeds.
type CloseState int32

const (
	Open CloseState = iota
	CloseSent
	CloseReceived
	Closed
	Disposed
)

func (s CloseState) String() string {
	switch s {
	case Open:
		return "Open"
	case CloseSent:
		return "CloseSent"
	case CloseReceived:
		return "CloseReceived"
	case Closed:
		return "Closed"
	case Disposed:
		return "Disposed"
	default:
		return "Unknown"
	}
}

// closeStateVar is the atomic holder for CloseState.
type closeStateVar struct {
	v int32
}

func (c *closeStateVar) load() CloseState {
	return CloseState(atomic.LoadInt32(&c.v))
}

func (c *closeStateVar) cas(from, to CloseState) bool {
	return atomic.CompareAndSwapInt32(&c.v, int32(from), int32(to))
}

// initiateLocalClose effects "local close()": Open -> CloseSent, or
// CloseReceived -> Closed. Returns the resulting state and whether a
// transition happened.
func (c *closeStateVar) initiateLocalClose() (CloseState, bool) {
	if c.cas(Open, CloseSent) {
		return CloseSent, true
	}
	if c.cas(CloseReceived, Closed) {
		return Closed, true
	}
	return c.load(), false
}

// observePeerClose effects "peer close frame arrives": Open ->
// CloseReceived, or CloseSent -> Closed.
func (c *closeStateVar) observePeerClose() (CloseState, bool) {
	if c.cas(Open, CloseReceived) {
		return CloseReceived, true
	}
	if c.cas(CloseSent, Closed) {
		return Closed, true
	}
	return c.load(), false
}

// dispose effects "any -> Disposed", idempotently.
func (c *closeStateVar) dispose() bool {
	for {
		cur := c.load()
		if cur == Disposed {
			return false
		}
		if atomic.CompareAndSwapInt32(&c.v, int32(cur), int32(Disposed)) {
			return true
		}
	}
}

// canSend reports state ∈ {Open, CloseReceived}.
func canSend(s CloseState) bool { return s == Open || s == CloseReceived }

// canReceive reports state ∈ {Open, CloseSent}.
func canReceive(s CloseState) bool { return s == Open || s == CloseSent }
