package detector

import (
	"context"
	"errors"
	"io"

	"github.com/banshee-data/beat.report/internal/beat"
)

// ErrUnexpectedEnd is returned by live sources whose stream ends. Finite
// sources return io.EOF instead.
var ErrUnexpectedEnd = errors.New("detector stream ended unexpectedly")

// Source yields one inference cycle of observations per call. Next
// returns io.EOF when a finite source is exhausted; any other error is
// fatal to the caller.
type Source interface {
	Next(ctx context.Context) ([]beat.RawObservation, error)
}

// SliceSource replays fixed batches then returns io.EOF. Intended for
// tests and offline replays that are already in memory.
type SliceSource struct {
	Batches [][]beat.RawObservation
	next    int
}

func (s *SliceSource) Next(ctx context.Context) ([]beat.RawObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.Batches) {
		return nil, io.EOF
	}
	b := s.Batches[s.next]
	s.next++
	return b, nil
}
