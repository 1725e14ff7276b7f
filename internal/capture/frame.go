package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/piecefinder/internal/timeutil"
)

// ErrDevice matches every *DeviceError via errors.Is.
var ErrDevice = errors.New("camera device failure")

// ErrDeviceClosed is the cause recorded when a source is read after Close.
var ErrDeviceClosed = errors.New("device closed")

// Frame is one captured image. It is immutable once produced.
type Frame struct {
	Image     image.Image
	Timestamp time.Time // when the frame arrived from the device
	Seq       uint64    // per-source sequence number, starting at 1
}

// Source produces frames from a camera-like device.
type Source interface {
	// Capture blocks until a frame newer than the previously returned one is
	// available. Device failures are reported as *DeviceError.
	Capture(ctx context.Context) (*Frame, error)
	Close() error
}

// DeviceError reports that the underlying device is unavailable or stopped
// producing frames. It is fatal to the source stage; callers decide whether
// to reopen or shut down.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("camera %s: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDevice) match any DeviceError.
func (e *DeviceError) Is(target error) bool { return target == ErrDevice }

// Config describes the device and the stream the pipeline expects from it.
type Config struct {
	Device string
	Width  int
	Height int
	FPS    int
	Clock  timeutil.Clock // defaults to timeutil.RealClock
}

func (c Config) clock() timeutil.Clock {
	if c.Clock == nil {
		return timeutil.RealClock{}
	}
	return c.Clock
}

func (c Config) frameInterval() time.Duration {
	return timeutil.Interval(c.FPS, time.Second/30)
}

// normalize resizes img to the configured resolution when the device
// delivered something else. Zero dimensions disable resizing.
func (c Config) normalize(img image.Image) image.Image {
	if c.Width <= 0 || c.Height <= 0 {
		return img
	}
	b := img.Bounds()
	if b.Dx() == c.Width && b.Dy() == c.Height {
		return img
	}
	return imaging.Resize(img, c.Width, c.Height, imaging.Linear)
}
