package beat

import (
	"fmt"
	"time"
)

// EventType is the detector's event flag. The numeric values match the
// detector output column (1 = beat, 2 = downbeat).
type EventType int

const (
	Beat     EventType = 1
	Downbeat EventType = 2
)

// Valid reports whether t is a known event flag.
func (t EventType) Valid() bool {
	return t == Beat || t == Downbeat
}

func (t EventType) String() string {
	switch t {
	case Beat:
		return "beat"
	case Downbeat:
		return "downbeat"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// RawObservation is a single event as reported by the detector.
// StreamTime is monotonic seconds since detector start.
type RawObservation struct {
	StreamTime float64
	Type       EventType
}

// QueueEntry is a RawObservation enriched at detection time.
type QueueEntry struct {
	RawObservation
	WallTime float64   // detector time mapped onto wall-clock seconds
	Arrival  time.Time // wall-clock time the producer enqueued the entry
	Frame    uint64    // producer frame counter at detection
}

// Prediction is a k-step forecast of beat times plus a 1-sigma bound.
type Prediction struct {
	Times         []float64
	ConfidenceStd float64
}

// TempoEstimate summarises the predictor's view of the current tempo.
type TempoEstimate struct {
	BPM     float64 `json:"bpm"`      // 60 / period
	Period  float64 `json:"period"`   // filter period (s)
	IBIMean float64 `json:"ibi_mean"` // mean of the recent valid inter-beat intervals (s)
	IBIStd  float64 `json:"ibi_std"`
	IBIMed  float64 `json:"ibi_median"`
	Samples int     `json:"samples"` // number of IBIs in the window
}

// Record is the enriched result produced for every accepted event.
type Record struct {
	Type          EventType     `json:"type"`
	StreamTime    float64       `json:"stream_time"`
	WallTime      float64       `json:"wall_time"`
	RelativeTime  float64       `json:"relative_time"` // WallTime minus session start
	Predicted     []float64     `json:"predicted"`
	ConfidenceStd float64       `json:"confidence_std"`
	Tempo         TempoEstimate `json:"tempo"`
	Frame         uint64        `json:"frame"`
}
