package testutil

import (
	"sync"
	"time"
)

type task struct {
	delay     time.Duration
	fn        func()
	cancelled bool
}

// ManualScheduler queues scheduled functions until the test runs them.
type ManualScheduler struct {
	mu     sync.Mutex
	tasks  []*task
	delays []time.Duration
}

// Schedule records fn. The returned function cancels it.
func (s *ManualScheduler) Schedule(delay time.Duration, fn func()) func() {
	t := &task{delay: delay, fn: fn}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.delays = append(s.delays, delay)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		t.cancelled = true
		s.mu.Unlock()
	}
}

// Pending returns the number of queued, uncancelled functions.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Delays returns the delay of every Schedule call in order.
func (s *ManualScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// RunNext runs the oldest uncancelled function on the calling goroutine.
// It reports whether one was run.
func (s *ManualScheduler) RunNext() bool {
	s.mu.Lock()
	var next *task
	for len(s.tasks) > 0 {
		t := s.tasks[0]
		s.tasks = s.tasks[1:]
		if !t.cancelled {
			next = t
			break
		}
	}
	s.mu.Unlock()
	if next == nil {
		return false
	}
	next.fn()
	return true
}

// RunAll runs queued functions, including ones they schedule, until none
// is left or limit functions ran. It returns the number run.
func (s *ManualScheduler) RunAll(limit int) int {
	n := 0
	for n < limit && s.RunNext() {
		n++
	}
	return n
}
