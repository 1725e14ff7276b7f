// Package pipeline runs the four perception stages (capture, detect,
// estimate, publish) as goroutines joined by single-slot channels.
//
// Each hand-off slot holds one item. A producer that finds its slot full
// drops the item it just produced, so the consumer always works on the
// oldest unconsumed result and never blocks the producer. The publisher runs
// on a fixed cadence and sends the neutral default whenever no estimate is
// waiting.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/piecefinder/internal/capture"
	"github.com/banshee-data/piecefinder/internal/detect"
	"github.com/banshee-data/piecefinder/internal/estimate"
	"github.com/banshee-data/piecefinder/internal/monitoring"
	"github.com/banshee-data/piecefinder/internal/timeutil"
)

var logs = monitoring.For("pipeline")

// DefaultPublishInterval is the publish cadence when Config leaves it unset.
const DefaultPublishInterval = 10 * time.Millisecond

const statsLogInterval = 5 * time.Second

// Estimator is the position stage.
type Estimator interface {
	Estimate(d detect.Detection) (*estimate.Estimate, bool)
}

// Publisher is the output stage. A nil estimate means "publish the default".
type Publisher interface {
	Publish(ctx context.Context, est *estimate.Estimate) error
}

// Config wires the stages together.
type Config struct {
	Source    capture.Source
	Detector  detect.Detector
	Estimator Estimator
	Publisher Publisher

	Clock           timeutil.Clock
	PublishInterval time.Duration

	// OnSinkError decides what a publish failure means. Returning nil keeps
	// the pipeline running; returning an error stops it and Run returns
	// that error. The default logs on the ops stream and continues.
	OnSinkError func(err error) error

	// FrameObserver, if set, sees every captured frame on the source
	// goroutine. It must not block.
	FrameObserver func(f *capture.Frame)
}

// Pipeline is a configured set of stages. Run may be called once.
type Pipeline struct {
	cfg      Config
	counters counters
	started  atomic.Bool
}

// New validates cfg and fills in defaults.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("pipeline: source is required")
	case cfg.Detector == nil:
		return nil, errors.New("pipeline: detector is required")
	case cfg.Estimator == nil:
		return nil, errors.New("pipeline: estimator is required")
	case cfg.Publisher == nil:
		return nil, errors.New("pipeline: publisher is required")
	case cfg.PublishInterval < 0:
		return nil, fmt.Errorf("pipeline: negative publish interval %v", cfg.PublishInterval)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.PublishInterval == 0 {
		cfg.PublishInterval = DefaultPublishInterval
	}
	if cfg.OnSinkError == nil {
		cfg.OnSinkError = logSinkError
	}
	return &Pipeline{cfg: cfg}, nil
}

func logSinkError(err error) error {
	logs.Opsf("publish failed: %v", err)
	return nil
}

// Run starts all stages and blocks until ctx is cancelled or a stage fails.
// It returns nil after a clean cancellation, the *capture.DeviceError if
// the camera fails, or the error returned by OnSinkError.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("pipeline: already started")
	}
	p.counters.startedAt.Store(p.cfg.Clock.Now().UnixNano())

	frames := make(chan *capture.Frame, 1)
	detections := make(chan *detect.Detection, 1)
	estimates := make(chan *estimate.Estimate, 1)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.runSource(ctx, frames) })
	g.Go(func() error { return p.runDetector(ctx, frames, detections) })
	g.Go(func() error { return p.runEstimator(ctx, detections, estimates) })
	g.Go(func() error { return p.runPublisher(ctx, estimates) })

	logs.Diagf("started, publishing every %v", p.cfg.PublishInterval)
	err := g.Wait()
	if err != nil {
		logs.Opsf("stopped: %v", err)
	} else {
		logs.Diagf("stopped")
	}
	return err
}

// offer is a non-blocking send. When the slot is full the new value is
// dropped and the counter incremented.
func offer[T any](ch chan<- T, v T, dropped *atomic.Uint64) bool {
	select {
	case ch <- v:
		return true
	default:
		dropped.Add(1)
		return false
	}
}

func (p *Pipeline) runSource(ctx context.Context, out chan<- *capture.Frame) error {
	for {
		f, err := p.cfg.Source.Capture(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("frame source: %w", err)
		}
		p.counters.captured.Add(1)
		if p.cfg.FrameObserver != nil {
			p.cfg.FrameObserver(f)
		}
		if !offer(out, f, &p.counters.framesDropped) {
			logs.Tracef("frame %d dropped, detector busy", f.Seq)
		}
	}
}

func (p *Pipeline) runDetector(ctx context.Context, in <-chan *capture.Frame, out chan<- *detect.Detection) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-in:
			d, ok := p.cfg.Detector.Detect(f)
			if !ok {
				p.counters.misses.Add(1)
				continue
			}
			p.counters.detections.Add(1)
			offer(out, d, &p.counters.detectionsDropped)
		}
	}
}

func (p *Pipeline) runEstimator(ctx context.Context, in <-chan *detect.Detection, out chan<- *estimate.Estimate) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-in:
			est, ok := p.cfg.Estimator.Estimate(*d)
			if !ok {
				p.counters.unmatched.Add(1)
				continue
			}
			p.counters.estimates.Add(1)
			offer(out, est, &p.counters.estimatesDropped)
		}
	}
}

func (p *Pipeline) runPublisher(ctx context.Context, in <-chan *estimate.Estimate) error {
	ticker := p.cfg.Clock.NewTicker(p.cfg.PublishInterval)
	defer ticker.Stop()
	lastLog := p.cfg.Clock.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}

		var est *estimate.Estimate
		select {
		case est = <-in:
		default:
		}

		if err := p.cfg.Publisher.Publish(ctx, est); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.counters.sinkErrors.Add(1)
			if herr := p.cfg.OnSinkError(err); herr != nil {
				return herr
			}
		} else if est == nil {
			p.counters.defaults.Add(1)
		} else {
			p.counters.published.Add(1)
			p.counters.lastLatency.Store(int64(p.cfg.Clock.Since(est.Timestamp)))
		}

		if p.cfg.Clock.Since(lastLog) >= statsLogInterval {
			lastLog = p.cfg.Clock.Now()
			s := p.Stats()
			logs.Diagf("captured=%d detections=%d estimates=%d published=%d defaults=%d dropped=%d/%d/%d sink_errors=%d latency=%.1fms",
				s.Captured, s.Detections, s.Estimates, s.Published, s.Defaults,
				s.FramesDropped, s.DetectionsDropped, s.EstimatesDropped, s.SinkErrors, s.LastLatencyMs)
		}
	}
}
