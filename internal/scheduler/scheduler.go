// Package scheduler runs callbacks at absolute due times from a single
// goroutine and a single timer.
//
// Pending tasks live in a min-heap keyed by (due, insertion sequence), so
// tasks due at the same instant fire in the order they were scheduled.
// Callbacks run on the scheduler goroutine and must not block for long.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/banshee-data/beat.report/internal/timeutil"
)

// ID identifies a scheduled task.
type ID uint64

type task struct {
	id    ID
	due   time.Time
	seq   uint64
	fn    func()
	index int
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler is safe for concurrent use. Schedule and Cancel may be called
// from any goroutine; Run must be called at most once.
type Scheduler struct {
	clock timeutil.Clock

	mu    sync.Mutex
	tasks taskHeap
	byID  map[ID]*task
	next  ID
	seq   uint64
	fired uint64

	wake chan struct{}
}

// New returns a Scheduler driven by clock. A nil clock means the real
// clock.
func New(clock timeutil.Clock) *Scheduler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Scheduler{
		clock: clock,
		byID:  make(map[ID]*task),
		wake:  make(chan struct{}, 1),
	}
}

// Schedule registers fn to run at due. A due time in the past runs on the
// next loop iteration.
func (s *Scheduler) Schedule(due time.Time, fn func()) ID {
	s.mu.Lock()
	s.next++
	s.seq++
	t := &task{id: s.next, due: due, seq: s.seq, fn: fn}
	heap.Push(&s.tasks, t)
	s.byID[t.id] = t
	head := s.tasks[0] == t
	s.mu.Unlock()

	if head {
		s.poke()
	}
	return t.id
}

// Cancel removes a pending task. It reports false if the task already ran
// or was never scheduled.
func (s *Scheduler) Cancel(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&s.tasks, t.index)
	delete(s.byID, id)
	return true
}

// Pending returns the number of tasks not yet run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Fired returns the number of tasks run so far.
func (s *Scheduler) Fired() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// RunDue runs every task due at or before now, in order, and returns how
// many ran.
func (s *Scheduler) RunDue(now time.Time) int {
	n := 0
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 || s.tasks[0].due.After(now) {
			s.mu.Unlock()
			return n
		}
		t := heap.Pop(&s.tasks).(*task)
		delete(s.byID, t.id)
		s.fired++
		s.mu.Unlock()

		t.fn()
		n++
	}
}

// Run drives the scheduler until ctx is done. It returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context) error {
	timer := s.clock.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.RunDue(s.clock.Now())

		var wait <-chan time.Time
		s.mu.Lock()
		if len(s.tasks) > 0 {
			d := s.tasks[0].due.Sub(s.clock.Now())
			timer.Stop()
			drain(timer)
			timer.Reset(d)
			wait = timer.C()
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-wait:
		}
	}
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func drain(t timeutil.Timer) {
	select {
	case <-t.C():
	default:
	}
}
