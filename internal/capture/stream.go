package capture

import (
	"bufio"
	"bytes"
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/piecefinder/internal/monitoring"
)

var logs = monitoring.For("capture")

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// maxJPEGBytes bounds a single frame in the MJPEG byte stream.
const maxJPEGBytes = 16 * 1024 * 1024

// splitJPEG is a bufio.SplitFunc yielding one complete JPEG (SOI..EOI) per
// token. Bytes before a start marker are discarded, as is a truncated
// trailing frame at EOF.
func splitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// Keep a trailing 0xFF: it may be the first half of an SOI.
		if len(data) > 1 {
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+2:], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

// streamSource decodes an MJPEG byte stream in the background and keeps only
// the newest frame. Capture hands each frame out at most once.
type streamSource struct {
	cfg Config

	mu          sync.Mutex
	latest      *Frame
	err         error
	updated     chan struct{} // closed and replaced whenever latest or err changes
	lastSeq     uint64        // highest Seq returned by Capture
	seq         uint64
	overwritten uint64 // frames replaced before anyone captured them
	decodeErrs  uint64
}

func newStreamSource(cfg Config) *streamSource {
	return &streamSource{cfg: cfg, updated: make(chan struct{})}
}

// consume reads r until it fails or ends. The terminal error (io.EOF for a
// clean end of stream) becomes the device error seen by Capture.
func (s *streamSource) consume(r io.Reader) {
	clock := s.cfg.clock()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), maxJPEGBytes)
	scanner.Split(splitJPEG)

	for scanner.Scan() {
		ts := clock.Now()
		img, err := imaging.Decode(bytes.NewReader(scanner.Bytes()))
		if err != nil {
			s.mu.Lock()
			s.decodeErrs++
			s.mu.Unlock()
			logs.Tracef("dropping undecodable frame from %s: %v", s.cfg.Device, err)
			continue
		}
		s.store(s.cfg.normalize(img), ts)
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	s.fail(err)
}

func (s *streamSource) store(img image.Image, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.latest != nil && s.latest.Seq > s.lastSeq {
		s.overwritten++
	}
	s.latest = &Frame{Image: img, Timestamp: ts, Seq: s.seq}
	s.signalLocked()
}

func (s *streamSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
	s.signalLocked()
}

func (s *streamSource) signalLocked() {
	close(s.updated)
	s.updated = make(chan struct{})
}

// Capture implements Source.
func (s *streamSource) Capture(ctx context.Context) (*Frame, error) {
	for {
		s.mu.Lock()
		if s.latest != nil && s.latest.Seq > s.lastSeq {
			f := s.latest
			s.lastSeq = f.Seq
			s.mu.Unlock()
			return f, nil
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return nil, &DeviceError{Device: s.cfg.Device, Err: err}
		}
		wait := s.updated
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wait:
		}
	}
}

// StreamStats reports counters of a streaming source.
type StreamStats struct {
	Frames       uint64 `json:"frames"`
	Overwritten  uint64 `json:"overwritten"`
	DecodeErrors uint64 `json:"decode_errors"`
}

func (s *streamSource) stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamStats{Frames: s.seq, Overwritten: s.overwritten, DecodeErrors: s.decodeErrs}
}
