//go:build !gocv

package capture

import "errors"

// ErrGoCVUnavailable is returned by OpenGoCV in builds without the gocv tag.
var ErrGoCVUnavailable = errors.New("gocv support not compiled in (build with -tags gocv)")

// GoCVSource is unavailable without the gocv build tag.
type GoCVSource struct{ Source }

// OpenGoCV reports that OpenCV capture is not part of this build.
func OpenGoCV(cfg Config) (*GoCVSource, error) {
	return nil, &DeviceError{Device: cfg.Device, Err: ErrGoCVUnavailable}
}
