package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/piecefinder/internal/timeutil"
)

func encodeJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestSplitJPEG(t *testing.T) {
	a := []byte{0xFF, 0xD8, 1, 2, 3, 0xFF, 0xD9}
	b := []byte{0xFF, 0xD8, 4, 0xFF, 0xD9}

	var stream []byte
	stream = append(stream, 0x00, 0x11) // leading garbage
	stream = append(stream, a...)
	stream = append(stream, 0x22)
	stream = append(stream, b...)
	stream = append(stream, 0xFF, 0xD8, 9, 9) // truncated trailing frame

	sc := bufio.NewScanner(bytes.NewReader(stream))
	sc.Buffer(make([]byte, 4), 64) // force several short reads
	sc.Split(splitJPEG)

	var tokens [][]byte
	for sc.Scan() {
		tokens = append(tokens, append([]byte(nil), sc.Bytes()...))
	}
	require.NoError(t, sc.Err())
	require.Len(t, tokens, 2)
	assert.Equal(t, a, tokens[0])
	assert.Equal(t, b, tokens[1])
}

func TestStreamSource_LatestFrameWins(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	src := newStreamSource(Config{Device: "test", Clock: clock})

	var stream []byte
	stream = append(stream, encodeJPEG(t, 16, 16, color.RGBA{255, 0, 0, 255})...)
	stream = append(stream, encodeJPEG(t, 16, 16, color.RGBA{0, 255, 0, 255})...)
	stream = append(stream, 0xFF, 0xD8, 0x00, 0xFF, 0xD9) // not a decodable JPEG
	stream = append(stream, encodeJPEG(t, 16, 16, color.RGBA{0, 0, 255, 255})...)

	src.consume(bytes.NewReader(stream))

	f, err := src.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), f.Seq, "only the newest frame is handed out")
	assert.True(t, f.Timestamp.Equal(start))

	stats := src.stats()
	assert.Equal(t, uint64(3), stats.Frames)
	assert.Equal(t, uint64(2), stats.Overwritten)
	assert.Equal(t, uint64(1), stats.DecodeErrors)

	_, err = src.Capture(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDevice))
	assert.True(t, errors.Is(err, io.EOF))

	var devErr *DeviceError
	require.True(t, errors.As(err, &devErr))
	assert.Equal(t, "test", devErr.Device)
}

func TestStreamSource_BlocksUntilFrame(t *testing.T) {
	src := newStreamSource(Config{Device: "pipe"})
	r, w := io.Pipe()
	go src.consume(r)

	got := make(chan *Frame, 1)
	go func() {
		f, err := src.Capture(context.Background())
		if err == nil {
			got <- f
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("Capture returned before any frame was written")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := w.Write(encodeJPEG(t, 8, 8, color.White))
	require.NoError(t, err)

	select {
	case f := <-got:
		require.NotNil(t, f)
		assert.Equal(t, uint64(1), f.Seq)
	case <-time.After(2 * time.Second):
		t.Fatal("Capture did not return after a frame arrived")
	}
	w.Close()
}

func TestStreamSource_ContextCancel(t *testing.T) {
	src := newStreamSource(Config{Device: "idle"})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := src.Capture(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.Is(err, ErrDevice))
}

func TestStreamSource_ResizesToTarget(t *testing.T) {
	src := newStreamSource(Config{Device: "resize", Width: 32, Height: 16})
	src.consume(bytes.NewReader(encodeJPEG(t, 64, 64, color.Gray{128})))

	f, err := src.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 32, f.Image.Bounds().Dx())
	assert.Equal(t, 16, f.Image.Bounds().Dy())
}

func TestFFmpegArgs(t *testing.T) {
	args := ffmpegArgs(Config{Device: "/dev/video2", Width: 1280, Height: 720, FPS: 120})
	assert.Contains(t, args, "/dev/video2")
	assert.Contains(t, args, "1280x720")
	assert.Contains(t, args, "120")
	assert.Equal(t, "-", args[len(args)-1], "frames are written to stdout")
}
