// File: transport/transport.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "context"

// Transport is the abstract full-duplex byte stream the connection
// engine is the only layer allowed to block on. n == 0, err == nil
// from Read means the peer half-closed its write side.
type Transport interface {
	Read(ctx context.Context, dst []byte) (n int, err error)
	Write(ctx context.Context, src []byte) (n int, err error)
	Flush(ctx context.Context) error
	Close() error
}
