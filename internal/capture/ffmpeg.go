package capture

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
)

// FFmpegSource captures from a V4L2 device by running ffmpeg and reading the
// MJPEG stream it writes to stdout.
type FFmpegSource struct {
	*streamSource

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ffmpegArgs builds the ffmpeg command line for cfg.
func ffmpegArgs(cfg Config) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-input_format", "mjpeg",
		"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-framerate", strconv.Itoa(cfg.FPS),
		"-i", cfg.Device,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	}
}

// OpenFFmpeg starts ffmpeg against cfg.Device. The process lives until Close
// is called or ctx is cancelled.
func OpenFFmpeg(ctx context.Context, cfg Config) (*FFmpegSource, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(cfg)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &DeviceError{Device: cfg.Device, Err: fmt.Errorf("failed to create stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, &DeviceError{Device: cfg.Device, Err: fmt.Errorf("failed to create stderr pipe: %w", err)}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &DeviceError{Device: cfg.Device, Err: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}
	logs.Diagf("ffmpeg started for %s at %dx%d@%d", cfg.Device, cfg.Width, cfg.Height, cfg.FPS)

	src := &FFmpegSource{streamSource: newStreamSource(cfg), cancel: cancel}

	src.wg.Add(1)
	go func() {
		defer src.wg.Done()
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			logs.Opsf("ffmpeg %s: %s", cfg.Device, sc.Text())
		}
	}()

	src.wg.Add(1)
	go func() {
		defer src.wg.Done()
		src.consume(stdout)
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			src.fail(fmt.Errorf("ffmpeg exited: %w", err))
		}
	}()

	return src, nil
}

// Stats returns frame counters for the stream.
func (s *FFmpegSource) Stats() StreamStats { return s.stats() }

// Close stops ffmpeg and waits for the reader goroutines.
func (s *FFmpegSource) Close() error {
	s.cancel()
	s.fail(ErrDeviceClosed)
	s.wg.Wait()
	return nil
}
