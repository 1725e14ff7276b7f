package detect

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/piecefinder/internal/capture"
)

// ErrInvalidThresholds is returned for HSV bounds outside the 8-bit OpenCV
// ranges or with a lower bound above the upper one.
var ErrInvalidThresholds = errors.New("invalid hsv thresholds")

// Box is an axis-aligned rectangle in pixel coordinates.
type Box struct {
	X, Y, W, H int
}

// Center returns the box centre as x + w/2, y + h/2.
func (b Box) Center() (float64, float64) {
	return float64(b.X) + float64(b.W)/2, float64(b.Y) + float64(b.H)/2
}

// Detection is the bounding box of the detected object, carrying the
// capture time and sequence of the frame it came from.
type Detection struct {
	Box
	Timestamp time.Time
	FrameSeq  uint64
}

// Detector turns a frame into at most one detection.
type Detector interface {
	Detect(f *capture.Frame) (*Detection, bool)
}

// HSVMax holds the inclusive upper limit of each HSV channel.
var HSVMax = [3]int{179, 255, 255}

// Thresholds are inclusive per-channel HSV bounds.
type Thresholds struct {
	Lower [3]int `json:"hsv_lower"`
	Upper [3]int `json:"hsv_upper"`
}

// Validate checks the bounds against the 8-bit HSV ranges.
func (t Thresholds) Validate() error {
	for i := 0; i < 3; i++ {
		if t.Lower[i] < 0 || t.Lower[i] > HSVMax[i] || t.Upper[i] < 0 || t.Upper[i] > HSVMax[i] {
			return fmt.Errorf("%w: channel %d out of range [0,%d]", ErrInvalidThresholds, i, HSVMax[i])
		}
		if t.Lower[i] > t.Upper[i] {
			return fmt.Errorf("%w: channel %d lower %d exceeds upper %d", ErrInvalidThresholds, i, t.Lower[i], t.Upper[i])
		}
	}
	return nil
}

func (t Thresholds) contains(h, s, v uint8) bool {
	return int(h) >= t.Lower[0] && int(h) <= t.Upper[0] &&
		int(s) >= t.Lower[1] && int(s) <= t.Upper[1] &&
		int(v) >= t.Lower[2] && int(v) <= t.Upper[2]
}

// Config is supplied when a detector is constructed.
type Config struct {
	Thresholds
	KernelSize int // side of the square structuring element, odd; 0 means 7
}

// DefaultKernelSize is the structuring element side used when Config leaves it unset.
const DefaultKernelSize = 7

func (c Config) kernel() int {
	if c.KernelSize == 0 {
		return DefaultKernelSize
	}
	return c.KernelSize
}

func (c Config) validate() error {
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if k := c.kernel(); k < 1 || k%2 == 0 {
		return fmt.Errorf("kernel size must be odd and positive, got %d", k)
	}
	return nil
}
