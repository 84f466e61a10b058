package detector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/beat.report/internal/beat"
	"github.com/banshee-data/beat.report/internal/monitoring"
)

// LineSource reads the line protocol from an io.Reader. Lines that fail
// to parse are logged and counted, then skipped.
//
// The reader runs on its own goroutine so Next can honour ctx while a
// read is blocked. Close stops that goroutine and closes the reader if
// it is an io.Closer.
type LineSource struct {
	r    io.Reader
	live bool

	startOnce sync.Once
	closeOnce sync.Once
	lines     chan string
	done      chan struct{}
	readErr   error // set before lines is closed

	lineNo      int
	parseErrors atomic.Uint64
	events      atomic.Uint64
	lastErr     atomic.Pointer[ParseError]
}

// NewLineSource returns a finite source: the end of r is io.EOF.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r, lines: make(chan string), done: make(chan struct{})}
}

// NewLiveLineSource returns a source for a device stream: the end of r is
// ErrUnexpectedEnd.
func NewLiveLineSource(r io.Reader) *LineSource {
	s := NewLineSource(r)
	s.live = true
	return s
}

func (s *LineSource) start() {
	go func() {
		defer close(s.lines)
		scan := bufio.NewScanner(s.r)
		for scan.Scan() {
			select {
			case s.lines <- scan.Text():
			case <-s.done:
				return
			}
		}
		s.readErr = scan.Err()
	}()
}

// Next returns the events of the next non-empty cycle. A trailing cycle
// without a boundary is delivered before the end-of-stream error.
func (s *LineSource) Next(ctx context.Context) ([]beat.RawObservation, error) {
	s.startOnce.Do(s.start)

	var batch []beat.RawObservation
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case line, ok := <-s.lines:
			if !ok {
				if len(batch) > 0 {
					return batch, nil
				}
				return nil, s.endErr()
			}
			s.lineNo++
			obs, kind, err := ParseLine(line)
			if err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					pe.Line = s.lineNo
					s.lastErr.Store(pe)
				}
				s.parseErrors.Add(1)
				monitoring.Stagef("detector", "skipping line: %v", err)
				continue
			}
			switch kind {
			case LineBoundary:
				if len(batch) > 0 {
					return batch, nil
				}
			case LineEvent:
				s.events.Add(1)
				batch = append(batch, obs)
			}
		}
	}
}

func (s *LineSource) endErr() error {
	if s.readErr != nil {
		return fmt.Errorf("read detector stream: %w", s.readErr)
	}
	if s.live {
		return ErrUnexpectedEnd
	}
	return io.EOF
}

// ParseErrors returns the number of lines skipped as unparseable.
func (s *LineSource) ParseErrors() uint64 { return s.parseErrors.Load() }

// Events returns the number of event lines decoded.
func (s *LineSource) Events() uint64 { return s.events.Load() }

// LastParseError returns the most recent parse failure, or nil.
func (s *LineSource) LastParseError() *ParseError { return s.lastErr.Load() }

// Close stops the reader goroutine and closes the underlying reader when
// it supports it. Idempotent.
func (s *LineSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if c, ok := s.r.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
