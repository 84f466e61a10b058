// Package sink delivers processed beat actions to downstream consumers
// without blocking the pipeline.
package sink

import (
	"errors"

	"github.com/banshee-data/beat.report/internal/beat"
)

var (
	// ErrSinkClosed is returned when handing an action to a closed sink.
	ErrSinkClosed = errors.New("sink closed")
	// ErrQueueFull is returned by FanOut when at least one output dropped
	// the action because its queue was full.
	ErrQueueFull = errors.New("sink queue full")
)

// Sink consumes actions. Handle may be called from a single goroutine at
// a time; implementations need not be safe for concurrent Handle calls.
type Sink interface {
	Handle(beat.Action) error
	Close() error
}

// Func adapts a function to a Sink with a no-op Close.
type Func func(beat.Action) error

func (f Func) Handle(a beat.Action) error { return f(a) }
func (f Func) Close() error               { return nil }

// Discard drops every action.
var Discard Sink = Func(func(beat.Action) error { return nil })
