package pipeline

import (
	"sync"

	"github.com/banshee-data/beat.report/internal/beat"
)

// historySize is the number of recent events kept for the debug chart.
const historySize = 256

// HistoryPoint is one processed event as seen by the debug chart.
type HistoryPoint struct {
	StreamTime    float64 `json:"stream_time"`
	RelativeTime  float64 `json:"relative_time"`
	Period        float64 `json:"period"`
	IBI           float64 `json:"ibi"` // 0 when the event did not yield a valid IBI
	ConfidenceStd float64 `json:"confidence_std"`
}

// Stats is a point-in-time view of the pipeline.
type Stats struct {
	Running bool `json:"running"`

	Frames     uint64 `json:"frames"`
	RawEvents  uint64 `json:"raw_events"`
	Duplicates uint64 `json:"duplicates"`
	Invalid    uint64 `json:"invalid"`
	Processed  uint64 `json:"processed"`
	SinkDrops  uint64 `json:"sink_drops"`
	SinkErrors uint64 `json:"sink_errors"`
	Scheduled  uint64 `json:"scheduled"`

	Queue       QueueCounters `json:"queue"`
	DedupSize   int           `json:"dedup_size"`
	DedupPruned uint64        `json:"dedup_pruned"`
	Overwrites  uint64        `json:"latest_overwrites"`

	ClockOffset   float64            `json:"clock_offset"`
	Phase         float64            `json:"phase"`
	Period        float64            `json:"period"`
	ConfidenceStd float64            `json:"confidence_std"`
	Tempo         beat.TempoEstimate `json:"tempo"`
	Last          *beat.Record       `json:"last,omitempty"`

	Err string `json:"error,omitempty"`
}

// statsBoard holds the values only the producer or consumer may compute,
// published for readers on other goroutines.
type statsBoard struct {
	mu      sync.Mutex
	offset  float64
	phase   float64
	last    *beat.Record
	history []HistoryPoint
	next    int
}

func newStatsBoard() *statsBoard {
	return &statsBoard{history: make([]HistoryPoint, 0, historySize)}
}

func (b *statsBoard) setOffset(off float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offset = off
}

// record stores the consumer's latest record and appends a chart point.
func (b *statsBoard) record(r beat.Record, phase, ibi float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rc := r
	b.last = &rc
	b.phase = phase

	pt := HistoryPoint{
		StreamTime:    r.StreamTime,
		RelativeTime:  r.RelativeTime,
		Period:        r.Tempo.Period,
		IBI:           ibi,
		ConfidenceStd: r.ConfidenceStd,
	}
	if len(b.history) < historySize {
		b.history = append(b.history, pt)
		return
	}
	b.history[b.next] = pt
	b.next = (b.next + 1) % historySize
}

// History returns the recent points oldest first.
func (b *statsBoard) History() []HistoryPoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]HistoryPoint, 0, len(b.history))
	out = append(out, b.history[b.next:]...)
	return append(out, b.history[:b.next]...)
}

// Stats returns a snapshot of every counter.
func (p *Pipeline) Stats() Stats {
	s := Stats{
		Running:     p.running.Load(),
		Frames:      p.frames.Load(),
		RawEvents:   p.rawEvents.Load(),
		Duplicates:  p.duplicates.Load(),
		Invalid:     p.invalid.Load(),
		Processed:   p.processed.Load(),
		SinkDrops:   p.sinkDrops.Load(),
		SinkErrors:  p.sinkErrors.Load(),
		Scheduled:   p.scheduled.Load(),
		Queue:       p.queue.Counters(),
		DedupSize:   p.dedup.Len(),
		DedupPruned: p.dedup.Pruned(),
		Overwrites:  p.latest.Overwrites(),
	}

	b := p.stats
	b.mu.Lock()
	s.ClockOffset = b.offset
	s.Phase = b.phase
	if b.last != nil {
		rc := *b.last
		s.Last = &rc
		s.Period = rc.Tempo.Period
		s.ConfidenceStd = rc.ConfidenceStd
		s.Tempo = rc.Tempo
	}
	b.mu.Unlock()

	if err := p.Err(); err != nil {
		s.Err = err.Error()
	}
	return s
}

// History returns the recent per-event points used by the debug chart.
func (p *Pipeline) History() []HistoryPoint {
	return p.stats.History()
}
