// Package wsbuf carves the connection engine's small pooled control
// buffer into its fixed sub-ranges, and supplies a concrete,
// size-classed BufferPool the engine can be constructed against.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package wsbuf
