package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/banshee-data/beat.report/internal/beat"
	"github.com/banshee-data/beat.report/internal/monitoring"
)

// Log formats.
const (
	FormatDetailed = "detailed"
	FormatSimple   = "simple"
	FormatCSV      = "csv"
)

const csvHeader = "timestamp,confidence_ms,prediction_1,prediction_2,prediction_3,prediction_4"

// csvPredictions is the fixed number of prediction columns in csv rows.
const csvPredictions = 4

// LogSink renders event actions as human-readable or CSV log lines.
// Custom actions run their callback. All times are printed on the
// session-relative timeline.
type LogSink struct {
	format string

	mu     sync.Mutex
	w      io.Writer // nil means monitoring.Logf
	count  uint64
	closed bool
}

// NewLogSink returns a LogSink writing lines to w, or to monitoring.Logf
// when w is nil. An unknown format falls back to detailed.
func NewLogSink(format string, w io.Writer) *LogSink {
	switch format {
	case FormatDetailed, FormatSimple, FormatCSV:
	default:
		format = FormatDetailed
	}
	return &LogSink{format: format, w: w}
}

// Handle implements Sink.
func (l *LogSink) Handle(a beat.Action) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrSinkClosed
	}
	return beat.Visit(a, l)
}

func (l *LogSink) VisitBeat(e beat.BeatEvent) error { return l.logRecord(e.Record) }

func (l *LogSink) VisitDownbeat(e beat.DownbeatEvent) error { return l.logRecord(e.Record) }

func (l *LogSink) VisitCustom(c beat.CustomAction) error {
	if c.Callback != nil {
		c.Callback()
	}
	return nil
}

func (l *LogSink) logRecord(r beat.Record) error {
	l.count++
	switch l.format {
	case FormatSimple:
		return l.line(fmt.Sprintf("%s at %.3fs", strings.ToUpper(r.Type.String()), r.RelativeTime))
	case FormatCSV:
		if l.count == 1 {
			if err := l.line(csvHeader); err != nil {
				return err
			}
		}
		return l.line(csvRow(r))
	default:
		return l.line(detailedLine(r))
	}
}

func (l *LogSink) line(s string) error {
	if l.w == nil {
		monitoring.Logf("%s", s)
		return nil
	}
	if _, err := io.WriteString(l.w, s+"\n"); err != nil {
		return fmt.Errorf("write log line: %w", err)
	}
	return nil
}

// Count returns the number of event records logged.
func (l *LogSink) Count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

// Close implements Sink. Further actions are rejected with ErrSinkClosed.
func (l *LogSink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// relativePredictions shifts stream-clock predictions onto the
// session-relative timeline of the record.
func relativePredictions(r beat.Record) []float64 {
	out := make([]float64, len(r.Predicted))
	for i, p := range r.Predicted {
		out[i] = p - r.StreamTime + r.RelativeTime
	}
	return out
}

func detailedLine(r beat.Record) string {
	label := "BEAT EVENT"
	if r.Type == beat.Downbeat {
		label = "DOWNBEAT EVENT"
	}
	ahead := "n/a"
	if preds := relativePredictions(r); len(preds) > 0 {
		parts := make([]string, len(preds))
		for i, p := range preds {
			parts[i] = fmt.Sprintf("%+.3fs", p)
		}
		ahead = strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%s | Time: %.3fs | Next%d: %s (±%dms)",
		label, r.RelativeTime, len(r.Predicted), ahead, int(1e3*r.ConfidenceStd))
}

func csvRow(r beat.Record) string {
	cols := make([]string, 0, 2+csvPredictions)
	cols = append(cols, fmt.Sprintf("%.3f", r.RelativeTime), fmt.Sprintf("%.1f", r.ConfidenceStd*1000))
	preds := relativePredictions(r)
	for i := 0; i < csvPredictions; i++ {
		if i < len(preds) {
			cols = append(cols, fmt.Sprintf("%.3f", preds[i]))
		} else {
			cols = append(cols, "")
		}
	}
	return strings.Join(cols, ",")
}
