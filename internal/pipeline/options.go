package pipeline

import (
	"time"

	"github.com/banshee-data/beat.report/internal/config"
	"github.com/banshee-data/beat.report/internal/predictor"
	"github.com/banshee-data/beat.report/internal/scheduler"
	"github.com/banshee-data/beat.report/internal/timeutil"
)

// DefaultJoinTimeout bounds how long Stop waits for the producer.
const DefaultJoinTimeout = 2 * time.Second

// DefaultPredictCount is the number of beats forecast per event.
const DefaultPredictCount = 4

// scheduledPredictions is how many forecast beats per event are handed to
// the scheduler.
const scheduledPredictions = 2

// PredictedBeat is delivered to Options.OnPredicted when a forecast beat
// comes due.
type PredictedBeat struct {
	StreamTime float64   // forecast time on the detector clock
	Due        time.Time // wall-clock time it was scheduled for
	Index      int       // 0 for the next beat, 1 for the one after
	Source     float64   // stream time of the event that produced it
}

// Options configures a Pipeline. The zero value is usable.
type Options struct {
	Clock         timeutil.Clock // defaults to the real clock
	ClockAlpha    float64
	DedupCapacity int
	QueueCapacity int
	PopTimeout    time.Duration
	JoinTimeout   time.Duration
	PredictCount  int
	Predictor     predictor.Params // zero value means predictor.DefaultParams

	// Async publishes every raw detector batch to Latest.
	Async bool

	// SessionStart anchors Record.RelativeTime. Zero means the time Run
	// is called.
	SessionStart time.Time

	// Scheduler, when set together with OnPredicted, receives the next
	// two forecast beats of every event. The caller runs it.
	Scheduler   *scheduler.Scheduler
	OnPredicted func(PredictedBeat)
}

// OptionsFromConfig maps tuning values onto Options.
func OptionsFromConfig(cfg *config.TuningConfig) Options {
	return Options{
		ClockAlpha:    cfg.GetClockAlpha(),
		DedupCapacity: cfg.GetDedupCapacity(),
		QueueCapacity: cfg.GetQueueCapacity(),
		PopTimeout:    cfg.GetPopTimeout(),
		JoinTimeout:   cfg.GetJoinTimeout(),
		PredictCount:  cfg.GetPredictCount(),
		Predictor:     cfg.PredictorParams(),
		Async:         cfg.GetAsync(),
	}
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.PopTimeout <= 0 {
		o.PopTimeout = DefaultPopTimeout
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = DefaultJoinTimeout
	}
	if o.PredictCount <= 0 {
		o.PredictCount = DefaultPredictCount
	}
	if o.Predictor == (predictor.Params{}) {
		o.Predictor = predictor.DefaultParams()
	}
	return o
}
