package detect

import (
	"sync/atomic"

	"github.com/banshee-data/piecefinder/internal/capture"
	"github.com/banshee-data/piecefinder/internal/monitoring"
)

var logs = monitoring.For("detect")

// ColorDetector is the pure-Go HSV color detector. It is safe for
// concurrent use; thresholds can be swapped while frames are in flight.
type ColorDetector struct {
	thresholds atomic.Pointer[Thresholds]
	kernel     int
}

// NewColorDetector validates cfg and returns a detector using it.
func NewColorDetector(cfg Config) (*ColorDetector, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	d := &ColorDetector{kernel: cfg.kernel()}
	t := cfg.Thresholds
	d.thresholds.Store(&t)
	return d, nil
}

// Thresholds returns the bounds currently in use.
func (d *ColorDetector) Thresholds() Thresholds {
	return *d.thresholds.Load()
}

// SetThresholds replaces the bounds used for subsequent frames.
func (d *ColorDetector) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	d.thresholds.Store(&t)
	logs.Diagf("thresholds set to lower=%v upper=%v", t.Lower, t.Upper)
	return nil
}

// Detect returns the bounding box of the largest region of in-range color,
// or false when the cleaned mask is empty.
func (d *ColorDetector) Detect(f *capture.Frame) (*Detection, bool) {
	if f == nil || f.Image == nil {
		return nil, false
	}
	m := clean(threshold(f.Image, d.Thresholds()), d.kernel)
	rs := regions(m)
	if len(rs) == 0 {
		return nil, false
	}
	best := rs[largest(rs)]
	box := best.box()
	origin := f.Image.Bounds().Min
	box.X += origin.X
	box.Y += origin.Y
	logs.Tracef("frame %d: %d regions, best %+v area %d", f.Seq, len(rs), box, best.area)
	return &Detection{Box: box, Timestamp: f.Timestamp, FrameSeq: f.Seq}, true
}
