package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/piecefinder/internal/calibration"
	"github.com/banshee-data/piecefinder/internal/capture"
	"github.com/banshee-data/piecefinder/internal/detect"
	"github.com/banshee-data/piecefinder/internal/estimate"
	"github.com/banshee-data/piecefinder/internal/telemetry"
)

// loopSource returns the same image as a new frame every millisecond.
type loopSource struct {
	img    image.Image
	seq    atomic.Uint64
	failAt uint64 // when non-zero, Capture fails once seq reaches it
}

func (s *loopSource) Capture(ctx context.Context) (*capture.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Millisecond):
	}
	n := s.seq.Add(1)
	if s.failAt != 0 && n >= s.failAt {
		return nil, &capture.DeviceError{Device: "loop", Err: errors.New("unplugged")}
	}
	return &capture.Frame{Image: s.img, Timestamp: time.Now(), Seq: n}, nil
}

func (s *loopSource) Close() error { return nil }

type memorySink struct {
	mu      sync.Mutex
	records []telemetry.Record
	err     error
}

func (s *memorySink) Publish(_ context.Context, r telemetry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

func (s *memorySink) snapshot() []telemetry.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]telemetry.Record(nil), s.records...)
}

func frameImage(box image.Rectangle) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	if !box.Empty() {
		draw.Draw(img, box, image.NewUniform(color.RGBA{255, 128, 0, 255}), image.Point{}, draw.Src)
	}
	return img
}

func newTestPipeline(t *testing.T, src capture.Source, sink telemetry.Sink, mutate func(*Config)) *Pipeline {
	t.Helper()
	det, err := detect.NewColorDetector(detect.Config{Thresholds: detect.Thresholds{
		Lower: [3]int{9, 35, 0}, Upper: [3]int{31, 255, 255},
	}})
	require.NoError(t, err)
	table := calibration.NewTable([]calibration.Row{
		{CenterX: 100, CenterY: 100, Width: 50, Height: 50, XPosition: 2.0, YPosition: 3.0},
	})
	est, err := estimate.New(table, estimate.DefaultParams())
	require.NoError(t, err)

	cfg := Config{
		Source:          src,
		Detector:        det,
		Estimator:       est,
		Publisher:       telemetry.NewPublisher(sink, nil),
		PublishInterval: time.Millisecond,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg)
	require.NoError(t, err)
	return p
}

func runAsync(p *Pipeline) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	return cancel, done
}

func TestRun_EmptyMaskPublishesDefault(t *testing.T) {
	sink := &memorySink{}
	p := newTestPipeline(t, &loopSource{img: frameImage(image.Rectangle{})}, sink, nil)
	cancel, done := runAsync(p)

	require.Eventually(t, func() bool { return len(sink.snapshot()) >= 5 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for _, r := range sink.snapshot() {
		assert.True(t, r.Default)
		assert.Equal(t, [4]float64{0, 0, 0, 0}, [4]float64{r.X, r.Y, r.Yaw, r.Certainty})
	}
	s := p.Stats()
	assert.Zero(t, s.Detections)
	assert.NotZero(t, s.Misses)
	assert.NotZero(t, s.Defaults)
	assert.Zero(t, s.Published)
}

func TestRun_PublishesEstimate(t *testing.T) {
	sink := &memorySink{}
	// Box (80, 80, 45, 45) matches the single calibration row at tolerance 25.
	src := &loopSource{img: frameImage(image.Rect(80, 80, 125, 125))}
	var observed atomic.Uint64
	p := newTestPipeline(t, src, sink, func(c *Config) {
		c.FrameObserver = func(*capture.Frame) { observed.Add(1) }
	})
	cancel, done := runAsync(p)

	var got telemetry.Record
	require.Eventually(t, func() bool {
		for _, r := range sink.snapshot() {
			if !r.Default {
				got = r
				return true
			}
		}
		return false
	}, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 2.0, got.X)
	assert.Equal(t, 3.0, got.Y)
	assert.Equal(t, 0.0, got.Yaw)
	assert.Equal(t, 25.0, got.Certainty)
	assert.False(t, got.CapturedAt.IsZero())
	assert.False(t, got.Timestamp.Before(got.CapturedAt), "publish time follows capture time")

	s := p.Stats()
	assert.NotZero(t, s.Published)
	assert.NotZero(t, s.Estimates)
	assert.Equal(t, s.Captured, observed.Load())
	assert.False(t, s.StartedAt.IsZero())
}

func TestRun_DeviceErrorStopsPipeline(t *testing.T) {
	sink := &memorySink{}
	p := newTestPipeline(t, &loopSource{img: frameImage(image.Rectangle{}), failAt: 5}, sink, nil)
	_, done := runAsync(p)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, capture.ErrDevice))
		var devErr *capture.DeviceError
		require.True(t, errors.As(err, &devErr))
		assert.Equal(t, "loop", devErr.Device)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline kept running after a device error")
	}
	assert.Equal(t, uint64(4), p.Stats().Captured)
}

func TestRun_SinkErrorPolicy(t *testing.T) {
	boom := errors.New("link down")

	t.Run("default continues", func(t *testing.T) {
		sink := &memorySink{err: boom}
		p := newTestPipeline(t, &loopSource{img: frameImage(image.Rectangle{})}, sink, nil)
		cancel, done := runAsync(p)
		require.Eventually(t, func() bool { return p.Stats().SinkErrors >= 3 }, 5*time.Second, time.Millisecond)
		cancel()
		assert.NoError(t, <-done)
	})

	t.Run("hook stops", func(t *testing.T) {
		sink := &memorySink{err: boom}
		var seen error
		p := newTestPipeline(t, &loopSource{img: frameImage(image.Rectangle{})}, sink, func(c *Config) {
			c.OnSinkError = func(err error) error {
				seen = err
				return err
			}
		})
		_, done := runAsync(p)
		err := <-done
		assert.ErrorIs(t, err, telemetry.ErrSinkUnavailable)
		assert.ErrorIs(t, err, boom)
		assert.ErrorIs(t, seen, boom)
		assert.Equal(t, uint64(1), p.Stats().SinkErrors)
	})
}

func TestRun_OnlyOnce(t *testing.T) {
	p := newTestPipeline(t, &loopSource{img: frameImage(image.Rectangle{})}, &memorySink{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Run(ctx))
	assert.Error(t, p.Run(context.Background()))
}

func TestOfferDropsNewest(t *testing.T) {
	var dropped atomic.Uint64
	ch := make(chan int, 1)

	assert.True(t, offer(ch, 1, &dropped))
	assert.False(t, offer(ch, 2, &dropped))
	assert.False(t, offer(ch, 3, &dropped))
	assert.Equal(t, 1, <-ch, "the queued item is kept, newer ones are dropped")
	assert.Equal(t, uint64(2), dropped.Load())
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	p := newTestPipeline(t, &loopSource{}, &memorySink{}, func(c *Config) { c.PublishInterval = 0 })
	assert.Equal(t, DefaultPublishInterval, p.cfg.PublishInterval)
	assert.NotNil(t, p.cfg.OnSinkError)
}
