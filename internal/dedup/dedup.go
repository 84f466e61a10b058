// Package dedup suppresses repeated detections of the same physical event.
//
// The upstream detector re-reports recent events on every inference
// cycle. Events are keyed by their stream time quantised to 10 ms plus
// their type; a key stays "seen" until capacity pressure evicts it.
package dedup

import (
	"math"
	"sync"

	"github.com/banshee-data/beat.report/internal/beat"
)

const (
	// DefaultCapacity is the retained key count above which pruning runs.
	DefaultCapacity = 1000

	// bucketsPerSecond sets the 10 ms quantisation.
	bucketsPerSecond = 100
)

// Key identifies one physical event.
type Key struct {
	Bucket int64
	Type   beat.EventType
}

// KeyFor quantises streamTime to the nearest 10 ms bucket.
func KeyFor(streamTime float64, t beat.EventType) Key {
	return Key{Bucket: int64(math.Round(streamTime * bucketsPerSecond)), Type: t}
}

// Deduplicator remembers recently seen keys. Once more than capacity keys
// are retained, the oldest half is dropped in insertion order.
type Deduplicator struct {
	mu       sync.Mutex
	capacity int
	seen     map[Key]struct{}
	order    []Key // insertion order; order[0] is the oldest
	pruned   uint64
}

// New returns a Deduplicator. A non-positive capacity uses DefaultCapacity.
func New(capacity int) *Deduplicator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Deduplicator{
		capacity: capacity,
		seen:     make(map[Key]struct{}, capacity+1),
		order:    make([]Key, 0, capacity+1),
	}
}

// Seen reports whether this is the first sighting of the event. A false
// result means the caller must drop the event as a duplicate.
func (d *Deduplicator) Seen(streamTime float64, t beat.EventType) bool {
	k := KeyFor(streamTime, t)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, dup := d.seen[k]; dup {
		return false
	}
	d.seen[k] = struct{}{}
	d.order = append(d.order, k)

	if len(d.order) > d.capacity {
		d.prune(d.capacity / 2)
	}
	return true
}

// prune removes the n oldest keys. Callers hold mu.
func (d *Deduplicator) prune(n int) {
	if n <= 0 {
		n = 1
	}
	for _, k := range d.order[:n] {
		delete(d.seen, k)
	}
	// Shift survivors down so the backing array does not grow unbounded.
	kept := copy(d.order, d.order[n:])
	clear(d.order[kept:])
	d.order = d.order[:kept]
	d.pruned += uint64(n)
}

// Len returns the number of retained keys.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.order)
}

// Pruned returns how many keys have been evicted by capacity pressure.
func (d *Deduplicator) Pruned() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pruned
}

// Keys returns the retained keys, oldest first.
func (d *Deduplicator) Keys() []Key {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Key(nil), d.order...)
}
