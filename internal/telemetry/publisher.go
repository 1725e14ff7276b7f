package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/piecefinder/internal/estimate"
	"github.com/banshee-data/piecefinder/internal/monitoring"
	"github.com/banshee-data/piecefinder/internal/timeutil"
)

var logs = monitoring.For("telemetry")

// Publisher turns estimates into records and hands them to a sink.
type Publisher struct {
	sink  Sink
	clock timeutil.Clock

	published atomic.Uint64
	defaults  atomic.Uint64
	failures  atomic.Uint64
	last      atomic.Pointer[Record]
}

// NewPublisher returns a Publisher writing to sink. A nil clock uses real time.
func NewPublisher(sink Sink, clock timeutil.Clock) *Publisher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Publisher{sink: sink, clock: clock}
}

// Publish sends est, or the neutral default when est is nil. The record is
// stamped with the current time. Sink failures are wrapped in
// ErrSinkUnavailable.
func (p *Publisher) Publish(ctx context.Context, est *estimate.Estimate) error {
	rec := Record{Timestamp: p.clock.Now(), Default: est == nil}
	if est != nil {
		rec.X = est.X
		rec.Y = est.Y
		rec.Certainty = est.Certainty
		rec.CapturedAt = est.Timestamp
	}

	if err := p.sink.Publish(ctx, rec); err != nil {
		p.failures.Add(1)
		if errors.Is(err, ErrSinkUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
	}

	p.published.Add(1)
	if rec.Default {
		p.defaults.Add(1)
	} else {
		logs.Tracef("published x=%.3f y=%.3f certainty=%g latency=%v", rec.X, rec.Y, rec.Certainty, rec.Latency())
	}
	p.last.Store(&rec)
	return nil
}

// Last returns the most recent successfully published record.
func (p *Publisher) Last() (Record, bool) {
	r := p.last.Load()
	if r == nil {
		return Record{}, false
	}
	return *r, true
}

// PublisherStats are cumulative publish counters.
type PublisherStats struct {
	Published uint64 `json:"published"`
	Defaults  uint64 `json:"defaults"`
	Failures  uint64 `json:"failures"`
}

// Stats returns the counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Published: p.published.Load(),
		Defaults:  p.defaults.Load(),
		Failures:  p.failures.Load(),
	}
}
