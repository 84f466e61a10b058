package pipeline

import (
	"context"
	"sync"
	"time"
)

// LatestSlot is a single-value mailbox. Put always succeeds and replaces
// any value not yet taken, so readers only ever see the most recent one.
type LatestSlot[T any] struct {
	mu         sync.Mutex
	val        T
	full       bool
	ready      chan struct{}
	puts       uint64
	overwrites uint64
}

// NewLatestSlot returns an empty slot.
func NewLatestSlot[T any]() *LatestSlot[T] {
	return &LatestSlot[T]{ready: make(chan struct{})}
}

// Put stores v, discarding any value still in the slot.
func (s *LatestSlot[T]) Put(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		s.overwrites++
	}
	s.val = v
	s.full = true
	s.puts++
	close(s.ready)
	s.ready = make(chan struct{})
}

// Get takes the value, waiting up to timeout for one. A zero timeout
// never waits. It returns false on timeout or when ctx is done.
func (s *LatestSlot[T]) Get(ctx context.Context, timeout time.Duration) (T, bool) {
	var zero T
	var expired <-chan time.Time
	for {
		s.mu.Lock()
		if s.full {
			v := s.val
			s.val = zero
			s.full = false
			s.mu.Unlock()
			return v, true
		}
		if timeout <= 0 {
			s.mu.Unlock()
			return zero, false
		}
		ready := s.ready
		s.mu.Unlock()

		if expired == nil {
			t := time.NewTimer(timeout)
			defer t.Stop()
			expired = t.C
		}
		select {
		case <-ready:
		case <-expired:
			return zero, false
		case <-ctx.Done():
			return zero, false
		}
	}
}

// Overwrites returns how many values were replaced before being read.
func (s *LatestSlot[T]) Overwrites() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overwrites
}

// Puts returns the total number of Put calls.
func (s *LatestSlot[T]) Puts() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}
