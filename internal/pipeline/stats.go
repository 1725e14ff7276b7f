package pipeline

import (
	"sync/atomic"
	"time"
)

type counters struct {
	startedAt atomic.Int64

	captured      atomic.Uint64
	framesDropped atomic.Uint64

	detections        atomic.Uint64
	misses            atomic.Uint64
	detectionsDropped atomic.Uint64

	estimates        atomic.Uint64
	unmatched        atomic.Uint64
	estimatesDropped atomic.Uint64

	published   atomic.Uint64
	defaults    atomic.Uint64
	sinkErrors  atomic.Uint64
	lastLatency atomic.Int64 // nanoseconds, capture to publish
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	StartedAt time.Time `json:"started_at"`

	Captured      uint64 `json:"captured"`
	FramesDropped uint64 `json:"frames_dropped"`

	Detections        uint64 `json:"detections"`
	Misses            uint64 `json:"misses"`
	DetectionsDropped uint64 `json:"detections_dropped"`

	Estimates        uint64 `json:"estimates"`
	Unmatched        uint64 `json:"unmatched"`
	EstimatesDropped uint64 `json:"estimates_dropped"`

	Published  uint64 `json:"published"`
	Defaults   uint64 `json:"defaults"`
	SinkErrors uint64 `json:"sink_errors"`

	LastLatencyMs float64 `json:"last_latency_ms"`
}

// Stats returns the current counters. Fields are read independently, so a
// snapshot taken while running may be slightly inconsistent across stages.
func (p *Pipeline) Stats() Stats {
	c := &p.counters
	s := Stats{
		Captured:          c.captured.Load(),
		FramesDropped:     c.framesDropped.Load(),
		Detections:        c.detections.Load(),
		Misses:            c.misses.Load(),
		DetectionsDropped: c.detectionsDropped.Load(),
		Estimates:         c.estimates.Load(),
		Unmatched:         c.unmatched.Load(),
		EstimatesDropped:  c.estimatesDropped.Load(),
		Published:         c.published.Load(),
		Defaults:          c.defaults.Load(),
		SinkErrors:        c.sinkErrors.Load(),
		LastLatencyMs:     float64(c.lastLatency.Load()) / float64(time.Millisecond),
	}
	if ns := c.startedAt.Load(); ns != 0 {
		s.StartedAt = time.Unix(0, ns).UTC()
	}
	return s
}
