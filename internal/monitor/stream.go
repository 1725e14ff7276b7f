package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/piecefinder/internal/capture"
	"github.com/banshee-data/piecefinder/internal/timeutil"
)

// Operator stream geometry.
const (
	StreamMaxWidth  = 640
	StreamMaxHeight = 480
	streamQuality   = 70
)

// FrameTap keeps the newest captured frame for the operator stream. Observe
// is safe to call from the capture goroutine: it never blocks and never
// copies the image.
type FrameTap struct {
	latest  atomic.Pointer[capture.Frame]
	clients atomic.Int32
	sent    atomic.Uint64
}

// NewFrameTap returns an empty tap.
func NewFrameTap() *FrameTap { return &FrameTap{} }

// Observe records f as the newest frame.
func (t *FrameTap) Observe(f *capture.Frame) {
	if f != nil {
		t.latest.Store(f)
	}
}

// Latest returns the newest frame, or nil before the first.
func (t *FrameTap) Latest() *capture.Frame { return t.latest.Load() }

// StreamStats describes the operator stream.
type StreamStats struct {
	Clients    int32  `json:"clients"`
	FramesSent uint64 `json:"frames_sent"`
}

// Stats returns the stream counters.
func (t *FrameTap) Stats() StreamStats {
	return StreamStats{Clients: t.clients.Load(), FramesSent: t.sent.Load()}
}

// encodeStreamFrame downscales img to fit the stream size and encodes it
// as JPEG.
func encodeStreamFrame(f *capture.Frame) ([]byte, error) {
	img := f.Image
	b := img.Bounds()
	if b.Dx() > StreamMaxWidth || b.Dy() > StreamMaxHeight {
		img = imaging.Fit(img, StreamMaxWidth, StreamMaxHeight, imaging.Linear)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(streamQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// handleStream serves multipart/x-mixed-replace JPEG frames, at most
// StreamFPS per second, until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	tap := s.cfg.Frames
	if tap == nil {
		writeJSONError(w, http.StatusNotFound, "stream not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	n := tap.clients.Add(1)
	logs.Diagf("stream client connected (total %d)", n)
	defer func() {
		logs.Diagf("stream client disconnected (remaining %d)", tap.clients.Add(-1))
	}()

	ticker := s.cfg.Clock.NewTicker(timeutil.Interval(s.cfg.StreamFPS, time.Second/15))
	defer ticker.Stop()

	var lastSeq uint64
	var lastTime time.Time
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C():
		}

		f := tap.Latest()
		if f == nil || (f.Seq == lastSeq && f.Timestamp.Equal(lastTime)) {
			continue
		}
		lastSeq, lastTime = f.Seq, f.Timestamp

		jpg, err := encodeStreamFrame(f)
		if err != nil {
			logs.Tracef("stream encode failed for frame %d: %v", f.Seq, err)
			continue
		}
		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpg)); err != nil {
			return
		}
		if _, err := w.Write(jpg); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()
		tap.sent.Add(1)
	}
}
