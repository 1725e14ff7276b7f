package detect

import (
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/piecefinder/internal/capture"
)

var (
	orange = color.RGBA{255, 128, 0, 255}
	blue   = color.RGBA{0, 0, 255, 255}

	defaultThresholds = Thresholds{Lower: [3]int{9, 35, 0}, Upper: [3]int{31, 255, 255}}
)

func blankFrame(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}

func paint(img draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func frameOf(img image.Image) *capture.Frame {
	return &capture.Frame{Image: img, Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Seq: 42}
}

func newDetector(t *testing.T, th Thresholds) *ColorDetector {
	t.Helper()
	d, err := NewColorDetector(Config{Thresholds: th})
	require.NoError(t, err)
	return d
}

func TestRGBToHSV(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    [3]uint8
	}{
		{"black", 0, 0, 0, [3]uint8{0, 0, 0}},
		{"white", 255, 255, 255, [3]uint8{0, 0, 255}},
		{"gray", 128, 128, 128, [3]uint8{0, 0, 128}},
		{"red", 255, 0, 0, [3]uint8{0, 255, 255}},
		{"green", 0, 255, 0, [3]uint8{60, 255, 255}},
		{"blue", 0, 0, 255, [3]uint8{120, 255, 255}},
		{"orange", 255, 128, 0, [3]uint8{15, 255, 255}},
		{"half saturation", 200, 100, 100, [3]uint8{0, 128, 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, s, v := rgbToHSV(tt.r, tt.g, tt.b)
			assert.Equal(t, tt.want, [3]uint8{h, s, v})
		})
	}
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, defaultThresholds.Validate())
	assert.ErrorIs(t, Thresholds{Lower: [3]int{0, 0, 0}, Upper: [3]int{180, 255, 255}}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{Lower: [3]int{0, 10, 0}, Upper: [3]int{179, 5, 255}}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{Lower: [3]int{-1, 0, 0}, Upper: [3]int{10, 10, 10}}.Validate(), ErrInvalidThresholds)

	_, err := NewColorDetector(Config{Thresholds: defaultThresholds, KernelSize: 4})
	assert.Error(t, err)
}

func TestMorphologyIgnoresOutOfImagePixels(t *testing.T) {
	full := newMask(5, 5)
	for i := range full.pix {
		full.pix[i] = 1
	}
	assert.Equal(t, 25, erode(full, 3).count(), "border pixels survive erosion")

	corner := newMask(5, 5)
	corner.pix[0] = 1
	assert.Equal(t, 4, dilate(corner, 3).count())
}

func TestRegionsEnclosedArea(t *testing.T) {
	m := newMask(20, 10)
	set := func(x, y int) { m.pix[y*m.w+x] = 1 }

	// Solid 7x7 block, first in raster order.
	for y := 1; y <= 7; y++ {
		for x := 1; x <= 7; x++ {
			set(x, y)
		}
	}
	// One pixel thick 8x8 ring.
	for i := 0; i < 8; i++ {
		set(10+i, 1)
		set(10+i, 8)
		set(10, 1+i)
		set(17, 1+i)
	}
	// Dot inside the ring.
	set(13, 4)

	rs := regions(m)
	require.Len(t, rs, 3)

	assert.Equal(t, Box{X: 1, Y: 1, W: 7, H: 7}, rs[0].box())
	assert.Equal(t, 49, rs[0].area)

	assert.Equal(t, Box{X: 10, Y: 1, W: 8, H: 8}, rs[1].box())
	assert.Equal(t, 28, rs[1].pixels)
	assert.Equal(t, 64, rs[1].area, "holes and nested regions count as enclosed")

	assert.Equal(t, 1, rs[2].area)
	assert.Equal(t, 1, largest(rs), "ring encloses more than the block")
}

func TestRegionsAreEightConnected(t *testing.T) {
	m := newMask(4, 4)
	m.pix[0*4+0] = 1
	m.pix[1*4+1] = 1
	m.pix[2*4+2] = 1
	rs := regions(m)
	require.Len(t, rs, 1)
	assert.Equal(t, Box{X: 0, Y: 0, W: 3, H: 3}, rs[0].box())
	assert.Equal(t, 3, rs[0].pixels)
}

func TestDetect_EmptyMask(t *testing.T) {
	d := newDetector(t, defaultThresholds)
	img := blankFrame(64, 48)
	paint(img, image.Rect(10, 10, 30, 30), blue)

	det, ok := d.Detect(frameOf(img))
	assert.False(t, ok)
	assert.Nil(t, det)

	det, ok = d.Detect(nil)
	assert.False(t, ok)
	assert.Nil(t, det)
}

func TestDetect_RemovesSpeckles(t *testing.T) {
	d := newDetector(t, defaultThresholds)
	img := blankFrame(100, 100)
	paint(img, image.Rect(10, 10, 13, 13), orange)
	paint(img, image.Rect(50, 50, 70, 70), orange)

	det, ok := d.Detect(frameOf(img))
	require.True(t, ok)
	assert.Equal(t, Box{X: 50, Y: 50, W: 20, H: 20}, det.Box)
	assert.Equal(t, uint64(42), det.FrameSeq)
	assert.True(t, det.Timestamp.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)))

	onlySpeck := blankFrame(100, 100)
	paint(onlySpeck, image.Rect(10, 10, 13, 13), orange)
	_, ok = d.Detect(frameOf(onlySpeck))
	assert.False(t, ok, "a speck smaller than the kernel is opened away")
}

func TestDetect_ClosingBridgesNarrowGap(t *testing.T) {
	d := newDetector(t, defaultThresholds)
	img := blankFrame(100, 60)
	paint(img, image.Rect(10, 10, 30, 30), orange)
	paint(img, image.Rect(33, 10, 53, 30), orange)

	det, ok := d.Detect(frameOf(img))
	require.True(t, ok)
	assert.Equal(t, Box{X: 10, Y: 10, W: 43, H: 20}, det.Box)
}

func TestDetect_LargestRegionWins(t *testing.T) {
	d := newDetector(t, defaultThresholds)
	img := blankFrame(120, 120)
	paint(img, image.Rect(5, 5, 20, 20), orange)
	paint(img, image.Rect(40, 60, 100, 100), orange)

	det, ok := d.Detect(frameOf(img))
	require.True(t, ok)
	assert.Equal(t, Box{X: 40, Y: 60, W: 60, H: 40}, det.Box)
}

func TestDetect_TieGoesToFirstInRasterOrder(t *testing.T) {
	d := newDetector(t, defaultThresholds)
	img := blankFrame(100, 100)
	paint(img, image.Rect(10, 60, 30, 80), orange)
	paint(img, image.Rect(60, 10, 80, 30), orange)

	det, ok := d.Detect(frameOf(img))
	require.True(t, ok)
	assert.Equal(t, Box{X: 60, Y: 10, W: 20, H: 20}, det.Box)
}

func TestDetect_Idempotent(t *testing.T) {
	d := newDetector(t, defaultThresholds)
	img := blankFrame(160, 120)
	paint(img, image.Rect(20, 30, 70, 90), orange)
	paint(img, image.Rect(100, 10, 140, 40), orange)
	f := frameOf(img)

	first, ok1 := d.Detect(f)
	second, ok2 := d.Detect(f)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, *first, *second)
}

func TestDetect_HandlesNonRGBAImages(t *testing.T) {
	d := newDetector(t, defaultThresholds)
	rgba := blankFrame(80, 80)
	paint(rgba, image.Rect(20, 20, 50, 50), orange)

	nrgba := image.NewNRGBA(rgba.Bounds())
	draw.Draw(nrgba, nrgba.Bounds(), rgba, image.Point{}, draw.Src)
	paletted := image.NewPaletted(rgba.Bounds(), color.Palette{color.Black, orange})
	draw.Draw(paletted, paletted.Bounds(), rgba, image.Point{}, draw.Src)

	for name, img := range map[string]image.Image{"nrgba": nrgba, "paletted": paletted} {
		det, ok := d.Detect(frameOf(img))
		require.True(t, ok, name)
		assert.Equal(t, Box{X: 20, Y: 20, W: 30, H: 30}, det.Box, name)
	}
}

func TestSetThresholds(t *testing.T) {
	d := newDetector(t, defaultThresholds)
	img := blankFrame(100, 100)
	paint(img, image.Rect(10, 10, 40, 40), orange)
	paint(img, image.Rect(60, 60, 80, 80), blue)

	det, ok := d.Detect(frameOf(img))
	require.True(t, ok)
	assert.Equal(t, Box{X: 10, Y: 10, W: 30, H: 30}, det.Box)

	blueRange := Thresholds{Lower: [3]int{110, 100, 100}, Upper: [3]int{130, 255, 255}}
	require.NoError(t, d.SetThresholds(blueRange))
	assert.Equal(t, blueRange, d.Thresholds())

	det, ok = d.Detect(frameOf(img))
	require.True(t, ok)
	assert.Equal(t, Box{X: 60, Y: 60, W: 20, H: 20}, det.Box)

	assert.Error(t, d.SetThresholds(Thresholds{Lower: [3]int{200, 0, 0}, Upper: [3]int{179, 255, 255}}))
	assert.Equal(t, blueRange, d.Thresholds(), "rejected thresholds are not applied")
}

func TestBoxCenter(t *testing.T) {
	cx, cy := Box{X: 80, Y: 80, W: 45, H: 45}.Center()
	assert.Equal(t, 102.5, cx)
	assert.Equal(t, 102.5, cy)
}
