// Package transport defines the abstract byte transport the
// connection engine blocks on, plus two concrete adapters: a TCP
// adapter for real sockets and an in-memory Pipe for tests.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package transport
