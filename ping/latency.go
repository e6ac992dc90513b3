// File: ping/latency.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ping

import "time"

// Latency is a measured round-trip estimate, valid only under
// LatencyControl. InfiniteLatency marks "unknown/unreachable" after a
// ping timeout, matching spec.md's "mark latency infinite".
type Latency time.Duration

const InfiniteLatency Latency = -1

// IsInfinite reports whether l represents the infinite sentinel.
func (l Latency) IsInfinite() bool { return l < 0 }
