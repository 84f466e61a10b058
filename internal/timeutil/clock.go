// Package timeutil provides the time sources used by the beat pipeline: a
// testable Clock abstraction and the detector-to-wall-clock mapper.
package timeutil

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock reads and timers so loops can be driven by a
// MockClock in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTimer creates a Timer that fires once after d.
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of *time.Timer the scheduler relies on.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// ToSeconds converts t to floating point seconds since the Unix epoch,
// the unit every estimator in this module works in.
func ToSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromSeconds is the inverse of ToSeconds.
func FromSeconds(s float64) time.Time {
	sec := int64(s)
	nsec := int64((s - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time        { return t.timer.C }
func (t *realTimer) Stop() bool                 { return t.timer.Stop() }
func (t *realTimer) Reset(d time.Duration) bool { return t.timer.Reset(d) }

// MockClock is a manually advanced clock for tests. Timers created from it
// fire during Advance once their deadline is reached.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*MockTimer
}

// NewMockClock creates a MockClock set to t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and fires expired timers.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	timers := append([]*MockTimer(nil), c.timers...)
	c.mu.Unlock()

	for _, t := range timers {
		t.fireIfDue(now)
	}
}

// NewTimer creates a MockTimer due d after the current mock time.
func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTimer{
		clock:    c,
		ch:       make(chan time.Time, 1),
		deadline: c.now.Add(d),
		active:   true,
	}
	c.timers = append(c.timers, t)
	return t
}

// Timers returns the number of timers created so far.
func (c *MockClock) Timers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// MockTimer is a Timer driven by a MockClock.
type MockTimer struct {
	clock    *MockClock
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	active   bool
}

func (t *MockTimer) C() <-chan time.Time { return t.ch }

func (t *MockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

func (t *MockTimer) Reset(d time.Duration) bool {
	now := t.clock.Now()
	t.mu.Lock()
	was := t.active
	t.active = true
	t.deadline = now.Add(d)
	t.mu.Unlock()
	// A zero or negative duration is already due.
	t.fireIfDue(now)
	return was
}

// Deadline reports when the timer is next due.
func (t *MockTimer) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

func (t *MockTimer) fireIfDue(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active || now.Before(t.deadline) {
		return
	}
	t.active = false
	select {
	case t.ch <- now:
	default:
	}
}
