//go:build gocv

package capture

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// GoCVSource reads frames through OpenCV's VideoCapture. It is only built
// with the gocv tag because it needs the OpenCV shared libraries.
type GoCVSource struct {
	cfg Config

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	seq    uint64
	closed bool
}

// OpenGoCV opens cfg.Device ("0", "/dev/video0", or a stream URL) and asks
// the driver for MJPEG at the configured resolution and rate.
func OpenGoCV(cfg Config) (*GoCVSource, error) {
	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, &DeviceError{Device: cfg.Device, Err: err}
	}
	vc.Set(gocv.VideoCaptureFOURCC, vc.ToCodec("MJPG"))
	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
	vc.Set(gocv.VideoCaptureBufferSize, 1)

	return &GoCVSource{cfg: cfg, vc: vc, mat: gocv.NewMat()}, nil
}

// Capture implements Source. VideoCapture.Read blocks until the driver
// delivers a frame, so cancellation is checked between reads.
func (s *GoCVSource) Capture(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.closed {
			return nil, &DeviceError{Device: s.cfg.Device, Err: ErrDeviceClosed}
		}
		if ok := s.vc.Read(&s.mat); !ok {
			return nil, &DeviceError{Device: s.cfg.Device, Err: fmt.Errorf("read failed")}
		}
		ts := s.cfg.clock().Now()
		if s.mat.Empty() {
			continue
		}
		img, err := s.mat.ToImage()
		if err != nil {
			logs.Tracef("dropping unconvertible frame from %s: %v", s.cfg.Device, err)
			continue
		}
		s.seq++
		return &Frame{Image: s.cfg.normalize(img), Timestamp: ts, Seq: s.seq}, nil
	}
}

// Close releases the device.
func (s *GoCVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.vc.Close()
}
