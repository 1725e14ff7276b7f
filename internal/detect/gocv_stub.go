//go:build !gocv

package detect

import "errors"

// ErrGoCVUnavailable is returned by NewGoCVDetector in builds without the gocv tag.
var ErrGoCVUnavailable = errors.New("gocv support not compiled in (build with -tags gocv)")

// GoCVDetector is unavailable without the gocv build tag.
type GoCVDetector struct{ *ColorDetector }

// NewGoCVDetector reports that the OpenCV detector is not part of this build.
func NewGoCVDetector(cfg Config) (*GoCVDetector, error) {
	return nil, ErrGoCVUnavailable
}

// Close is a no-op.
func (d *GoCVDetector) Close() error { return nil }
