package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/beat.report/internal/beat"
	"github.com/banshee-data/beat.report/internal/dedup"
	"github.com/banshee-data/beat.report/internal/detector"
	"github.com/banshee-data/beat.report/internal/monitoring"
	"github.com/banshee-data/beat.report/internal/predictor"
	"github.com/banshee-data/beat.report/internal/sink"
	"github.com/banshee-data/beat.report/internal/timeutil"
)

// Frame is one raw detector batch as published to the latest slot in
// async mode.
type Frame struct {
	Number uint64
	At     time.Time
	Events []beat.RawObservation
}

// Pipeline owns every piece of per-session state: the clock offset, the
// dedup set, the predictor and the counters.
type Pipeline struct {
	opts Options
	src  detector.Source
	out  sink.Sink

	queue  *EventQueue
	latest *LatestSlot[Frame]
	dedup  *dedup.Deduplicator
	mapper *timeutil.ClockMapper // producer only
	pred   *predictor.Predictor  // consumer only

	prevStream float64 // consumer only
	havePrev   bool

	running  atomic.Bool
	started  atomic.Bool
	stopOnce sync.Once

	mu           sync.Mutex
	cancel       context.CancelFunc
	err          error
	sessionStart float64

	producerDone chan struct{}
	consumerDone chan struct{}

	frames     atomic.Uint64
	rawEvents  atomic.Uint64
	duplicates atomic.Uint64
	invalid    atomic.Uint64
	processed  atomic.Uint64
	sinkDrops  atomic.Uint64
	sinkErrors atomic.Uint64
	scheduled  atomic.Uint64

	stats *statsBoard
}

// New builds a Pipeline reading from src and delivering to out.
func New(src detector.Source, out sink.Sink, opts Options) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		opts:         opts,
		src:          src,
		out:          out,
		queue:        NewEventQueue(opts.QueueCapacity),
		latest:       NewLatestSlot[Frame](),
		dedup:        dedup.New(opts.DedupCapacity),
		mapper:       timeutil.NewClockMapper(opts.ClockAlpha),
		pred:         predictor.New(opts.Predictor),
		producerDone: make(chan struct{}),
		consumerDone: make(chan struct{}),
		stats:        newStatsBoard(),
	}
}

// Latest returns the slot raw batches are published to in async mode.
func (p *Pipeline) Latest() *LatestSlot[Frame] { return p.latest }

// Queue returns the event queue, for inspection.
func (p *Pipeline) Queue() *EventQueue { return p.queue }

// Running reports whether the stages are still active.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Run starts the producer and consumer and blocks until the pipeline
// stops: the source is exhausted and the queue drained, ctx is done, Stop
// is called, or a stage fails. It returns the first *StageError, or nil
// for a clean stop. A Pipeline runs once.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return ErrStopped
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := p.opts.SessionStart
	if start.IsZero() {
		start = p.opts.Clock.Now()
	}
	p.mu.Lock()
	// A non-nil cancel here means Stop already ran.
	stopped := p.cancel != nil
	if !stopped {
		p.cancel = cancel
		p.sessionStart = timeutil.ToSeconds(start)
		p.running.Store(true)
	}
	p.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	go p.produce(runCtx)
	go p.consume(runCtx)

	select {
	case <-p.consumerDone:
	case <-runCtx.Done():
	}
	p.Stop()
	<-p.consumerDone
	return p.Err()
}

// Stop shuts the pipeline down: it clears the run flag, cancels the
// stages, closes the queue and waits up to the join timeout for the
// producer. A producer that fails to stop in time is logged and left
// behind. Stop is idempotent and safe to call before Run.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.running.Store(false)
		p.mu.Lock()
		cancel := p.cancel
		p.cancel = func() {}
		p.mu.Unlock()
		if cancel == nil {
			// Never started.
			p.queue.Close()
			return
		}
		cancel()
		p.queue.Close()
		if c, ok := p.src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				monitoring.Stagef(StageProducer, "closing source: %v", err)
			}
		}

		t := time.NewTimer(p.opts.JoinTimeout)
		defer t.Stop()
		select {
		case <-p.producerDone:
		case <-t.C:
			monitoring.Stagef(StageProducer, "did not stop within %s, continuing shutdown", p.opts.JoinTimeout)
		}
	})
}

// Err returns the first fatal stage error, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// fail records the first fatal error and starts shutdown without waiting
// for the failing stage.
func (p *Pipeline) fail(stage string, err error) {
	p.mu.Lock()
	first := p.err == nil
	if first {
		p.err = &StageError{Stage: stage, Err: err}
	}
	cancel := p.cancel
	p.mu.Unlock()
	if !first {
		return
	}
	monitoring.Stagef(stage, "fatal: %v", err)
	p.running.Store(false)
	if cancel != nil {
		cancel()
	}
	p.queue.Close()
}

func (p *Pipeline) produce(ctx context.Context) {
	defer close(p.producerDone)
	for p.running.Load() {
		batch, err := p.src.Next(ctx)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				// Finite source: let the consumer drain what is queued.
				p.queue.Close()
			case ctx.Err() != nil || !p.running.Load():
				// Shutdown in progress.
			default:
				p.fail(StageProducer, err)
			}
			return
		}
		p.ingest(batch)
	}
}

// ingest runs dedup and clock mapping over one batch and enqueues the
// survivors in stream order.
func (p *Pipeline) ingest(batch []beat.RawObservation) {
	now := p.opts.Clock.Now()
	frame := p.frames.Add(1)
	if p.opts.Async {
		p.latest.Put(Frame{Number: frame, At: now, Events: batch})
	}
	nowWall := timeutil.ToSeconds(now)
	for _, obs := range batch {
		p.rawEvents.Add(1)
		if !obs.Type.Valid() {
			p.invalid.Add(1)
			continue
		}
		if !p.dedup.Seen(obs.StreamTime, obs.Type) {
			p.duplicates.Add(1)
			continue
		}
		p.queue.Push(beat.QueueEntry{
			RawObservation: obs,
			WallTime:       p.mapper.Map(obs.StreamTime, nowWall),
			Arrival:        now,
			Frame:          frame,
		})
	}
	if off, ok := p.mapper.Offset(); ok {
		p.stats.setOffset(off)
	}
}

func (p *Pipeline) consume(ctx context.Context) {
	defer close(p.consumerDone)
	for {
		entry, ok := p.queue.Pop(ctx, p.opts.PopTimeout)
		if !ok {
			if p.queue.Drained() || !p.running.Load() || ctx.Err() != nil {
				return
			}
			continue
		}
		if !p.running.Load() {
			return
		}
		if err := p.process(entry); err != nil {
			p.fail(StageConsumer, err)
			return
		}
	}
}

// process feeds one accepted event through the predictor and hands the
// record to the sink. It returns an error only for failures that end the
// session.
func (p *Pipeline) process(e beat.QueueEntry) error {
	p.pred.Observe(e.StreamTime)
	pred := p.pred.Predict(e.StreamTime, p.opts.PredictCount)
	tempo := p.pred.Tempo()

	p.mu.Lock()
	start := p.sessionStart
	p.mu.Unlock()

	rec := beat.Record{
		Type:          e.Type,
		StreamTime:    e.StreamTime,
		WallTime:      e.WallTime,
		RelativeTime:  e.WallTime - start,
		Predicted:     pred.Times,
		ConfidenceStd: pred.ConfidenceStd,
		Tempo:         tempo,
		Frame:         e.Frame,
	}
	action, err := beat.NewEventAction(rec)
	if err != nil {
		// Unreachable: the producer filters invalid types.
		p.invalid.Add(1)
		return nil
	}

	if err := p.out.Handle(action); err != nil {
		switch {
		case errors.Is(err, sink.ErrQueueFull):
			p.sinkDrops.Add(1)
		case errors.Is(err, sink.ErrSinkClosed):
			return err
		default:
			p.sinkErrors.Add(1)
			monitoring.Stagef(StageConsumer, "sink rejected %s: %v", action.Kind(), err)
		}
	}
	p.processed.Add(1)
	p.schedulePredictions(e, pred.Times)

	var ibi float64
	if p.havePrev {
		params := p.pred.Params()
		if d := e.StreamTime - p.prevStream; d >= params.MinPeriod && d <= params.MaxPeriod {
			ibi = d
		}
	}
	p.prevStream, p.havePrev = e.StreamTime, true
	phase, _ := p.pred.Phase()
	p.stats.record(rec, phase, ibi)
	return nil
}

func (p *Pipeline) schedulePredictions(e beat.QueueEntry, times []float64) {
	s, cb := p.opts.Scheduler, p.opts.OnPredicted
	if s == nil || cb == nil {
		return
	}
	offset := e.WallTime - e.StreamTime
	for i, t := range times {
		if i >= scheduledPredictions {
			break
		}
		pb := PredictedBeat{
			StreamTime: t,
			Due:        timeutil.FromSeconds(t + offset),
			Index:      i,
			Source:     e.StreamTime,
		}
		s.Schedule(pb.Due, func() { cb(pb) })
		p.scheduled.Add(1)
	}
}
