package capture

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/piecefinder/internal/timeutil"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".gif": true, ".tif": true, ".tiff": true,
}

// ImageDirSource replays the still images of a directory, in name order,
// at the configured frame rate. It loops forever. It stands in for a camera
// in dev mode and on the bench.
type ImageDirSource struct {
	cfg    Config
	images []image.Image

	mu     sync.Mutex
	ticker timeutil.Ticker
	next   int
	seq    uint64
	closed bool
}

// OpenImageDir loads every image in dir (cfg.Device is ignored).
func OpenImageDir(dir string, cfg Config) (*ImageDirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &DeviceError{Device: dir, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, &DeviceError{Device: dir, Err: fmt.Errorf("no images found")}
	}

	images := make([]image.Image, 0, len(names))
	for _, name := range names {
		img, err := imaging.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", name, err)
		}
		images = append(images, cfg.normalize(img))
	}
	logs.Diagf("replaying %d images from %s at %d fps", len(images), dir, cfg.FPS)

	cfg.Device = dir
	return NewImageSource(images, cfg), nil
}

// NewImageSource replays images that are already in memory.
func NewImageSource(images []image.Image, cfg Config) *ImageDirSource {
	return &ImageDirSource{
		cfg:    cfg,
		images: images,
		ticker: cfg.clock().NewTicker(cfg.frameInterval()),
	}
}

// Capture implements Source. It blocks for one frame interval.
func (s *ImageDirSource) Capture(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, &DeviceError{Device: s.cfg.Device, Err: ErrDeviceClosed}
	}
	tick := s.ticker.C()
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-tick:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, &DeviceError{Device: s.cfg.Device, Err: ErrDeviceClosed}
	}
	img := s.images[s.next]
	s.next = (s.next + 1) % len(s.images)
	s.seq++
	return &Frame{Image: img, Timestamp: s.cfg.clock().Now(), Seq: s.seq}, nil
}

// Close stops the replay.
func (s *ImageDirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.ticker.Stop()
	}
	return nil
}
