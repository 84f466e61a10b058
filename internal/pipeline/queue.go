package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/beat.report/internal/beat"
)

// DefaultQueueCapacity is the default EventQueue size.
const DefaultQueueCapacity = 128

// DefaultPopTimeout bounds how long the consumer waits for an event.
const DefaultPopTimeout = 100 * time.Millisecond

// PushResult reports what Push did.
type PushResult int

const (
	// Pushed means the entry was appended without eviction.
	Pushed PushResult = iota
	// EvictedOldest means the queue was full and its oldest entry was
	// dropped to make room.
	EvictedOldest
	// Rejected means the queue is closed.
	Rejected
)

func (r PushResult) String() string {
	switch r {
	case Pushed:
		return "pushed"
	case EvictedOldest:
		return "evicted_oldest"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// QueueCounters are the lifetime counters of an EventQueue.
type QueueCounters struct {
	Pushed  uint64 `json:"pushed"`
	Evicted uint64 `json:"evicted"`
	Popped  uint64 `json:"popped"`
	Len     int    `json:"len"`
	Cap     int    `json:"cap"`
}

// EventQueue is a bounded FIFO that never blocks writers: when full it
// evicts the single oldest entry before inserting. Safe for concurrent
// use.
type EventQueue struct {
	mu     sync.Mutex
	buf    []beat.QueueEntry
	head   int
	n      int
	closed bool
	// ready is closed and replaced whenever an entry arrives or the queue
	// closes, waking every blocked Pop.
	ready chan struct{}

	pushed, evicted, popped uint64
}

// NewEventQueue returns a queue holding at most capacity entries. A
// non-positive capacity means DefaultQueueCapacity.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &EventQueue{
		buf:   make([]beat.QueueEntry, capacity),
		ready: make(chan struct{}),
	}
}

// Push appends e, evicting the oldest entry if the queue is full.
func (q *EventQueue) Push(e beat.QueueEntry) PushResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Rejected
	}

	res := Pushed
	if q.n == len(q.buf) {
		q.buf[q.head] = beat.QueueEntry{}
		q.head = (q.head + 1) % len(q.buf)
		q.n--
		q.evicted++
		res = EvictedOldest
	}
	q.buf[(q.head+q.n)%len(q.buf)] = e
	q.n++
	q.pushed++
	q.signal()
	return res
}

// signal wakes blocked poppers. Callers hold q.mu.
func (q *EventQueue) signal() {
	close(q.ready)
	q.ready = make(chan struct{})
}

// Pop removes and returns the oldest entry, waiting up to timeout for
// one to arrive. It returns false on timeout, when ctx is done, or when
// the queue is closed and empty. A closed queue still yields the entries
// it holds. A zero timeout never waits.
func (q *EventQueue) Pop(ctx context.Context, timeout time.Duration) (beat.QueueEntry, bool) {
	var expired <-chan time.Time
	for {
		q.mu.Lock()
		if q.n > 0 {
			e := q.buf[q.head]
			q.buf[q.head] = beat.QueueEntry{}
			q.head = (q.head + 1) % len(q.buf)
			q.n--
			q.popped++
			q.mu.Unlock()
			return e, true
		}
		if q.closed || timeout <= 0 {
			q.mu.Unlock()
			return beat.QueueEntry{}, false
		}
		ready := q.ready
		q.mu.Unlock()

		if expired == nil {
			t := time.NewTimer(timeout)
			defer t.Stop()
			expired = t.C
		}
		select {
		case <-ready:
		case <-expired:
			return beat.QueueEntry{}, false
		case <-ctx.Done():
			return beat.QueueEntry{}, false
		}
	}
}

// Close rejects further pushes and wakes blocked poppers. Idempotent.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.signal()
}

// Closed reports whether Close has been called.
func (q *EventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Drained reports whether the queue is closed and empty.
func (q *EventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && q.n == 0
}

// Len returns the number of queued entries.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Snapshot returns the queued entries oldest first without removing them.
func (q *EventQueue) Snapshot() []beat.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]beat.QueueEntry, q.n)
	for i := range out {
		out[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	return out
}

// Counters returns the lifetime counters.
func (q *EventQueue) Counters() QueueCounters {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueCounters{
		Pushed:  q.pushed,
		Evicted: q.evicted,
		Popped:  q.popped,
		Len:     q.n,
		Cap:     len(q.buf),
	}
}
