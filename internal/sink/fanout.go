package sink

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/beat.report/internal/beat"
	"github.com/banshee-data/beat.report/internal/monitoring"
)

// DefaultQueueCapacity is the per-output buffer size.
const DefaultQueueCapacity = 128

// OutputStats reports delivery counters for one registered sink.
type OutputStats struct {
	Name     string `json:"name"`
	Queued   int    `json:"queued"`
	Capacity int    `json:"capacity"`
	Handled  uint64 `json:"handled"`
	Dropped  uint64 `json:"dropped"`
	Errors   uint64 `json:"errors"`
}

type output struct {
	name string
	sink Sink
	ch   chan beat.Action

	handled  atomic.Uint64
	dropped  atomic.Uint64
	errors   atomic.Uint64
	dropping atomic.Bool // set while in a drop burst
}

// FanOut copies each action to every registered sink. Each sink gets its
// own bounded queue and worker goroutine so a slow sink never stalls the
// caller or the other sinks.
type FanOut struct {
	capacity int

	mu      sync.RWMutex
	outputs []*output
	closed  bool
	wg      sync.WaitGroup
}

// NewFanOut returns an empty FanOut. A non-positive capacity means
// DefaultQueueCapacity.
func NewFanOut(capacity int) *FanOut {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &FanOut{capacity: capacity}
}

// Add registers s under name and starts its worker.
func (f *FanOut) Add(name string, s Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrSinkClosed
	}
	o := &output{name: name, sink: s, ch: make(chan beat.Action, f.capacity)}
	f.outputs = append(f.outputs, o)
	f.wg.Add(1)
	go f.work(o)
	return nil
}

func (f *FanOut) work(o *output) {
	defer f.wg.Done()
	for a := range o.ch {
		if err := o.sink.Handle(a); err != nil {
			o.errors.Add(1)
			monitoring.Logf("sink %s: failed to handle %s: %v", o.name, a.Kind(), err)
			continue
		}
		o.handled.Add(1)
	}
}

// Handle enqueues a on every output without blocking. If any output is
// full the action is dropped for that output and ErrQueueFull is
// returned; the drop is logged once per burst.
func (f *FanOut) Handle(a beat.Action) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return ErrSinkClosed
	}

	var full []string
	for _, o := range f.outputs {
		select {
		case o.ch <- a:
			o.dropping.Store(false)
		default:
			o.dropped.Add(1)
			full = append(full, o.name)
			if !o.dropping.Swap(true) {
				monitoring.Logf("sink %s: queue full, dropping actions", o.name)
			}
		}
	}
	if len(full) > 0 {
		return fmt.Errorf("%w: %v", ErrQueueFull, full)
	}
	return nil
}

// Close stops accepting actions, lets every worker drain its queue, then
// closes the registered sinks. Close is idempotent.
func (f *FanOut) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	for _, o := range f.outputs {
		close(o.ch)
	}
	outputs := f.outputs
	f.mu.Unlock()

	f.wg.Wait()

	var errs []error
	for _, o := range outputs {
		if err := o.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", o.name, err))
		}
	}
	return errors.Join(errs...)
}

// Stats returns per-output counters in registration order.
func (f *FanOut) Stats() []OutputStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]OutputStats, 0, len(f.outputs))
	for _, o := range f.outputs {
		out = append(out, OutputStats{
			Name:     o.name,
			Queued:   len(o.ch),
			Capacity: cap(o.ch),
			Handled:  o.handled.Load(),
			Dropped:  o.dropped.Load(),
			Errors:   o.errors.Load(),
		})
	}
	return out
}
