// File: scheduler/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler fires deferred callbacks — liveness ticks, close timeouts —
// through one shared min-heap timer instead of one goroutine and
// time.Timer per connection. Due callbacks are handed to a small pool
// of dispatch workers over a FIFO queue so a slow handler never stalls
// the timer goroutine itself.

package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/sys/cpu"
)

// Cancelable is returned by Schedule; Cancel on it is a best-effort
// no-op once the job has already fired or been canceled.
type Cancelable interface {
	Cancel()
}

type cancelToken struct {
	s *Scheduler
	j *job
}

func (t *cancelToken) Cancel() { t.s.cancel(t.j) }

// Scheduler runs one timer goroutine feeding a bounded pool of
// dispatch workers.
type Scheduler struct {
	mu      sync.Mutex
	h       jobHeap
	nextSeq uint64
	wake    chan struct{}

	_ cpu.CacheLinePad // separates the heap/mutex above from the queue below

	qmu   sync.Mutex
	ready *queue.Queue
	qsig  chan struct{}

	workers int
	cancel_ context.CancelFunc
	done    chan struct{}
}

// New starts a Scheduler with the given number of dispatch workers.
// workers <= 0 defaults to 1.
func New(workers int) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		wake:    make(chan struct{}, 1),
		ready:   queue.New(),
		qsig:    make(chan struct{}, 1),
		workers: workers,
		cancel_: cancel,
		done:    make(chan struct{}),
	}
	go s.timerLoop(ctx)
	for i := 0; i < workers; i++ {
		go s.dispatchLoop(ctx)
	}
	return s
}

// Now returns the current time as UnixNano, matching the granularity
// Schedule's delay is measured against.
func (s *Scheduler) Now() int64 { return time.Now().UnixNano() }

// Schedule arranges for fn to run on a dispatch worker approximately
// delay from now. The returned Cancelable may be used to prevent a
// not-yet-fired job from running.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) Cancelable {
	j := &job{deadline: time.Now().Add(delay).UnixNano(), fn: fn}
	s.mu.Lock()
	j.seq = s.nextSeq
	s.nextSeq++
	heap.Push(&s.h, j)
	s.mu.Unlock()
	s.poke()
	return &cancelToken{s: s, j: j}
}

func (s *Scheduler) cancel(j *job) {
	s.mu.Lock()
	j.canceled = true
	s.mu.Unlock()
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Close stops the timer and dispatch goroutines. Queued-but-not-yet-
// run jobs are dropped.
func (s *Scheduler) Close() {
	s.cancel_()
}

func (s *Scheduler) timerLoop(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	for {
		s.mu.Lock()
		var wait time.Duration = time.Hour
		if len(s.h) > 0 {
			wait = time.Until(time.Unix(0, s.h[0].deadline))
			if wait < 0 {
				wait = 0
			}
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.drainDue()
		case <-s.wake:
			// Loop back around to recompute wait against the new head.
		}
	}
}

func (s *Scheduler) drainDue() {
	now := time.Now().UnixNano()
	for {
		s.mu.Lock()
		if len(s.h) == 0 || s.h[0].deadline > now {
			s.mu.Unlock()
			return
		}
		j := heap.Pop(&s.h).(*job)
		s.mu.Unlock()

		if j.canceled {
			continue
		}
		s.qmu.Lock()
		s.ready.Add(j.fn)
		s.qmu.Unlock()
		select {
		case s.qsig <- struct{}{}:
		default:
		}
	}
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.qmu.Lock()
		var fn func()
		if s.ready.Length() > 0 {
			fn = s.ready.Remove().(func())
		}
		s.qmu.Unlock()

		if fn == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.qsig:
				continue
			}
		}
		s.runSafely(fn)
	}
}

func (s *Scheduler) runSafely(fn func()) {
	defer func() { recover() }()
	fn()
}
