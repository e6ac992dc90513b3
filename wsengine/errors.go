// File: wsengine/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Structured error kinds: every failure the engine surfaces carries
// one of four kinds so callers can decide retry/close/log policy
// without string-matching messages.

package wsengine

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a Error.
type Kind int

const (
	KindProtocol Kind = iota
	KindTransport
	KindState
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "ProtocolError"
	case KindTransport:
		return "TransportError"
	case KindState:
		return "StateError"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is this module's structured error type.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("wsengine: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("wsengine: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

// Sentinel StateErrors for the connection's guard conditions.
var (
	ErrConnectionClosed     = &Error{Kind: KindState, Message: "connection is closed or disposed"}
	ErrAlreadyReading       = &Error{Kind: KindState, Message: "a read is already in progress"}
	ErrAlreadyWriting       = &Error{Kind: KindState, Message: "a write is already in progress"}
	ErrNoCurrentHeader      = &Error{Kind: KindState, Message: "no data header is currently active"}
	ErrFrameNotFinished     = &Error{Kind: KindState, Message: "current frame still has unread bytes"}
	ErrWritePermitContended = &Error{Kind: KindState, Message: "write permit not available within the requested timeout"}
)

// alreadyReported reports whether err is already one of this
// package's Errors (or a Cancelled context error), so callers never
// double-wrap an error that has already been reported upstream.
func alreadyReported(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
