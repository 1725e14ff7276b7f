package detect

// mask is a binary image, one byte per pixel (0 or 1), row-major.
type mask struct {
	w, h int
	pix  []uint8
}

func newMask(w, h int) *mask {
	return &mask{w: w, h: h, pix: make([]uint8, w*h)}
}

func (m *mask) count() int {
	n := 0
	for _, p := range m.pix {
		n += int(p)
	}
	return n
}

// erode and dilate use a k×k square clipped to the image, so pixels outside
// the frame never take part. A square window is separable: a row pass then a
// column pass gives the same result as the full 2D window.
func erode(m *mask, k int) *mask { return morph(m, k, true) }

func dilate(m *mask, k int) *mask { return morph(m, k, false) }

func morph(m *mask, k int, all bool) *mask {
	if k <= 1 {
		out := newMask(m.w, m.h)
		copy(out.pix, m.pix)
		return out
	}
	r := k / 2
	tmp := newMask(m.w, m.h)
	for y := 0; y < m.h; y++ {
		pass1D(m.pix[y*m.w:(y+1)*m.w], 1, tmp.pix[y*m.w:], 1, m.w, r, all)
	}
	out := newMask(m.w, m.h)
	for x := 0; x < m.w; x++ {
		pass1D(tmp.pix[x:], m.w, out.pix[x:], m.w, m.h, r, all)
	}
	return out
}

// pass1D applies a clipped window of radius r along a strided line of n
// samples. With all set a sample survives only if every neighbour is set
// (erosion); otherwise any set neighbour sets it (dilation).
func pass1D(src []uint8, srcStride int, dst []uint8, dstStride int, n, r int, all bool) {
	prefix := make([]int, n+1)
	for i := 0; i < n; i++ {
		prefix[i+1] = prefix[i] + int(src[i*srcStride])
	}
	for i := 0; i < n; i++ {
		lo, hi := i-r, i+r
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}
		ones := prefix[hi+1] - prefix[lo]
		var v uint8
		if all {
			if ones == hi-lo+1 {
				v = 1
			}
		} else if ones > 0 {
			v = 1
		}
		dst[i*dstStride] = v
	}
}

// opening removes specks smaller than the kernel.
func opening(m *mask, k int) *mask { return dilate(erode(m, k), k) }

// closing fills gaps and pinholes smaller than the kernel.
func closing(m *mask, k int) *mask { return erode(dilate(m, k), k) }

// clean is the noise filter applied before region extraction: an opening
// followed by a closing.
func clean(m *mask, k int) *mask { return closing(opening(m, k), k) }
