//go:build gocv

package detect

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/banshee-data/piecefinder/internal/capture"
)

// GoCVDetector runs the same HSV threshold, opening, closing and external
// contour search through OpenCV. Region size is the contour area.
type GoCVDetector struct {
	*ColorDetector
	kernel gocv.Mat
}

// NewGoCVDetector validates cfg and allocates the structuring element.
func NewGoCVDetector(cfg Config) (*GoCVDetector, error) {
	base, err := NewColorDetector(cfg)
	if err != nil {
		return nil, err
	}
	k := cfg.kernel()
	return &GoCVDetector{
		ColorDetector: base,
		kernel:        gocv.GetStructuringElement(gocv.MorphRect, image.Pt(k, k)),
	}, nil
}

// Detect implements Detector.
func (d *GoCVDetector) Detect(f *capture.Frame) (*Detection, bool) {
	if f == nil || f.Image == nil {
		return nil, false
	}
	src, err := gocv.ImageToMatRGB(f.Image)
	if err != nil {
		logs.Opsf("frame %d: convert to mat: %v", f.Seq, err)
		return nil, false
	}
	defer src.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorRGBToHSV)

	t := d.Thresholds()
	lower := gocv.NewScalar(float64(t.Lower[0]), float64(t.Lower[1]), float64(t.Lower[2]), 0)
	upper := gocv.NewScalar(float64(t.Upper[0]), float64(t.Upper[1]), float64(t.Upper[2]), 0)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, d.kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, d.kernel)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()
	if contours.Size() == 0 {
		return nil, false
	}

	best, bestArea := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); best < 0 || a > bestArea {
			best, bestArea = i, a
		}
	}
	r := gocv.BoundingRect(contours.At(best))
	origin := f.Image.Bounds().Min
	box := Box{X: r.Min.X + origin.X, Y: r.Min.Y + origin.Y, W: r.Dx(), H: r.Dy()}
	return &Detection{Box: box, Timestamp: f.Timestamp, FrameSeq: f.Seq}, true
}

// Close releases the structuring element.
func (d *GoCVDetector) Close() error {
	return d.kernel.Close()
}
