// File: scheduler/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package scheduler drives connection liveness ticks (Connection.Ping)
// and deferred close timeouts without asking every connection to own a
// goroutine and a time.Timer. One Scheduler instance amortizes the
// timer bookkeeping for an arbitrary number of connections.
package scheduler
