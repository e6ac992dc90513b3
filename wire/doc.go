// Package wire implements the RFC 6455 WebSocket frame header wire
// format: parsing, serialization, and payload masking.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package wire
