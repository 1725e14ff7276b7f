package detect

import (
	"image"
	"image/color"
)

// rgbToHSV converts one pixel using OpenCV's 8-bit convention: hue is
// degrees/2 in 0..179, saturation and value are scaled to 0..255.
func rgbToHSV(r, g, b uint8) (h, s, v uint8) {
	hi, lo := r, r
	if g > hi {
		hi = g
	}
	if b > hi {
		hi = b
	}
	if g < lo {
		lo = g
	}
	if b < lo {
		lo = b
	}

	v = hi
	if hi == 0 {
		return 0, 0, 0
	}
	diff := int(hi) - int(lo)
	s = uint8((diff*255 + int(hi)/2) / int(hi))
	if diff == 0 {
		return 0, s, v
	}

	var deg float64
	switch hi {
	case r:
		deg = 60 * float64(int(g)-int(b)) / float64(diff)
	case g:
		deg = 120 + 60*float64(int(b)-int(r))/float64(diff)
	default:
		deg = 240 + 60*float64(int(r)-int(g))/float64(diff)
	}
	if deg < 0 {
		deg += 360
	}
	hh := int(deg/2 + 0.5)
	if hh >= 180 {
		hh -= 180
	}
	return uint8(hh), s, v
}

// threshold builds the binary mask of pixels inside t.
func threshold(img image.Image, t Thresholds) *mask {
	b := img.Bounds()
	m := newMask(b.Dx(), b.Dy())

	set := func(x, y int, r, g, bl uint8) {
		h, s, v := rgbToHSV(r, g, bl)
		if t.contains(h, s, v) {
			m.pix[y*m.w+x] = 1
		}
	}

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < m.h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+m.w*4]
			for x := 0; x < m.w; x++ {
				p := row[x*4 : x*4+3]
				set(x, y, p[0], p[1], p[2])
			}
		}
	case *image.NRGBA:
		for y := 0; y < m.h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+m.w*4]
			for x := 0; x < m.w; x++ {
				p := row[x*4 : x*4+3]
				set(x, y, p[0], p[1], p[2])
			}
		}
	case *image.YCbCr:
		for y := 0; y < m.h; y++ {
			for x := 0; x < m.w; x++ {
				yi := src.YOffset(b.Min.X+x, b.Min.Y+y)
				ci := src.COffset(b.Min.X+x, b.Min.Y+y)
				r, g, bl := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				set(x, y, r, g, bl)
			}
		}
	default:
		for y := 0; y < m.h; y++ {
			for x := 0; x < m.w; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				set(x, y, c.R, c.G, c.B)
			}
		}
	}
	return m
}
