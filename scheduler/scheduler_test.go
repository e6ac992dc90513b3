// File: scheduler/scheduler_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package scheduler

import (
	"sync"
	"testing"
	"time"
)

func TestScheduleFiresOnce(t *testing.T) {
	s := New(2)
	defer s.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	fired := false
	s.Schedule(10*time.Millisecond, func() {
		fired = true
		wg.Done()
	})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled job never fired")
	}
	if !fired {
		t.Fatal("job did not set fired flag")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	s := New(1)
	defer s.Close()

	fired := false
	tok := s.Schedule(30*time.Millisecond, func() { fired = true })
	tok.Cancel()

	time.Sleep(80 * time.Millisecond)
	if fired {
		t.Fatal("canceled job fired anyway")
	}
}

func TestOrdersByDeadline(t *testing.T) {
	s := New(1)
	defer s.Close()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)

	record := func(n int) func() {
		return func() {
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			wg.Done()
		}
	}
	s.Schedule(30*time.Millisecond, record(3))
	s.Schedule(10*time.Millisecond, record(1))
	s.Schedule(20*time.Millisecond, record(2))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not all jobs fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("jobs fired out of deadline order: %v", order)
	}
}
