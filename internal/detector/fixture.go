package detector

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/beat.report/internal/beat"
	"github.com/banshee-data/beat.report/internal/timeutil"
)

// FixtureSource replays a recorded detector session from a file. When
// paced, each cycle is released no earlier than its latest stream time
// relative to the first cycle, so replays run at the original speed.
type FixtureSource struct {
	*LineSource
	clock timeutil.Clock
	pace  bool

	started bool
	t0      float64
	wall0   time.Time
}

// OpenFixture opens a line-protocol fixture. A nil clock with pace set
// uses the real clock.
func OpenFixture(path string, pace bool, clock timeutil.Clock) (*FixtureSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	return NewFixtureSource(NewLineSource(f), pace, clock), nil
}

// NewFixtureSource wraps an existing finite LineSource.
func NewFixtureSource(src *LineSource, pace bool, clock timeutil.Clock) *FixtureSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &FixtureSource{LineSource: src, clock: clock, pace: pace}
}

// Next implements Source.
func (f *FixtureSource) Next(ctx context.Context) ([]beat.RawObservation, error) {
	batch, err := f.LineSource.Next(ctx)
	if err != nil || !f.pace {
		return batch, err
	}

	latest := batch[0].StreamTime
	for _, obs := range batch[1:] {
		latest = max(latest, obs.StreamTime)
	}
	if !f.started {
		f.started = true
		f.t0 = latest
		f.wall0 = f.clock.Now()
		return batch, nil
	}

	due := f.wall0.Add(time.Duration((latest - f.t0) * float64(time.Second)))
	wait := due.Sub(f.clock.Now())
	if wait <= 0 {
		return batch, nil
	}
	t := f.clock.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C():
		return batch, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
