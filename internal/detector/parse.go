package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/beat.report/internal/beat"
)

// BoundaryMarker ends an inference cycle, as does a blank line.
const BoundaryMarker = "---"

var (
	errFieldCount = errors.New("expected <stream_time>,<flag>")
	errBadTime    = errors.New("stream time must be finite")
	errBadFlag    = errors.New("flag must be 1 (beat) or 2 (downbeat)")
)

// ParseError describes a line that could not be decoded.
type ParseError struct {
	Line int // 1-based line number, 0 if unknown
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: cannot parse %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("cannot parse %q: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LineKind classifies a protocol line.
type LineKind int

const (
	LineEvent LineKind = iota
	LineBoundary
	LineComment
)

type jsonEvent struct {
	T    *float64 `json:"t"`
	Type *float64 `json:"type"`
}

// ParseLine decodes one protocol line. Errors are *ParseError with Line
// left at 0.
func ParseLine(line string) (beat.RawObservation, LineKind, error) {
	text := strings.TrimSpace(line)
	switch {
	case text == "" || text == BoundaryMarker:
		return beat.RawObservation{}, LineBoundary, nil
	case strings.HasPrefix(text, "#"):
		return beat.RawObservation{}, LineComment, nil
	}

	var (
		t, flag float64
		err     error
	)
	if strings.HasPrefix(text, "{") {
		t, flag, err = parseJSON(text)
	} else {
		t, flag, err = parseCSV(text)
	}
	if err != nil {
		return beat.RawObservation{}, LineEvent, &ParseError{Text: text, Err: err}
	}

	if math.IsNaN(t) || math.IsInf(t, 0) {
		return beat.RawObservation{}, LineEvent, &ParseError{Text: text, Err: errBadTime}
	}
	typ := beat.EventType(flag)
	if float64(typ) != flag || !typ.Valid() {
		return beat.RawObservation{}, LineEvent, &ParseError{Text: text, Err: errBadFlag}
	}
	return beat.RawObservation{StreamTime: t, Type: typ}, LineEvent, nil
}

func parseCSV(text string) (float64, float64, error) {
	fields := strings.Split(text, ",")
	if len(fields) != 2 {
		return 0, 0, errFieldCount
	}
	t, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("stream time: %w", err)
	}
	// Detectors emitting numpy rows print the flag as a float (1.0).
	flag, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("flag: %w", err)
	}
	return t, flag, nil
}

func parseJSON(text string) (float64, float64, error) {
	var ev jsonEvent
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		return 0, 0, err
	}
	if ev.T == nil || ev.Type == nil {
		return 0, 0, errors.New(`json event needs "t" and "type"`)
	}
	return *ev.T, *ev.Type, nil
}
