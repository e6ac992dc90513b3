// File: scheduler/heap.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

import "container/heap"

// job is one scheduled callback, ordered by its absolute deadline.
type job struct {
	deadline int64 // UnixNano
	seq      uint64
	fn       func()
	index    int  // heap.Interface bookkeeping
	canceled bool
}

// jobHeap is a min-heap on deadline, stdlib container/heap driven. No
// third-party priority queue in the dependency set covers a
// timer-ordered min-heap, so this one piece stays on the standard
// library by design.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

var _ heap.Interface = (*jobHeap)(nil)
