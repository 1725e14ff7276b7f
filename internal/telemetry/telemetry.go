// Package telemetry forwards position estimates to the robot controller.
//
// Every publish carries four scalar channels: position_x, position_y, yaw
// and certainty. When no estimate is available the neutral record
// (0, 0, 0, 0) is sent so consumers can tell "nothing seen" from a stale
// value. Sinks are fire-and-forget: a failed publish is reported but never
// retried.
package telemetry

import (
	"context"
	"errors"
	"time"
)

// ErrSinkUnavailable wraps every sink failure returned by Publisher.Publish.
var ErrSinkUnavailable = errors.New("telemetry sink unavailable")

// Record is one published sample.
type Record struct {
	X          float64   `json:"position_x"`
	Y          float64   `json:"position_y"`
	Yaw        float64   `json:"yaw"`
	Certainty  float64   `json:"certainty"`
	Timestamp  time.Time `json:"timestamp"`             // publish time
	CapturedAt time.Time `json:"captured_at,omitempty"` // capture time of the source frame; zero for defaults
	Default    bool      `json:"default"`
}

// Latency is the time from frame capture to publish. It is zero for the
// neutral default.
func (r Record) Latency() time.Duration {
	if r.Default || r.CapturedAt.IsZero() {
		return 0
	}
	return r.Timestamp.Sub(r.CapturedAt)
}

// Sink delivers records to one transport.
type Sink interface {
	Publish(ctx context.Context, r Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Record) error

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, r Record) error { return f(ctx, r) }

// MultiSink publishes to every sink in order. All sinks are attempted even
// if one fails; the failures are joined.
type MultiSink []Sink

// Publish implements Sink.
func (m MultiSink) Publish(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
