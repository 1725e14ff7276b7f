package detect

// region is one 8-connected foreground component.
type region struct {
	minX, minY, maxX, maxY int
	pixels                 int
	area                   int // pixels plus enclosed holes
}

func (r region) box() Box {
	return Box{X: r.minX, Y: r.minY, W: r.maxX - r.minX + 1, H: r.maxY - r.minY + 1}
}

var neighbours8 = [8][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}, {1, 0}, {-1, 1}, {0, 1}, {1, 1}}
var neighbours4 = [4][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}

// regions labels the 8-connected components of m in raster order of their
// first pixel.
func regions(m *mask) []region {
	labels := make([]int32, len(m.pix))
	var out []region
	var queue []int

	for start, p := range m.pix {
		if p == 0 || labels[start] != 0 {
			continue
		}
		id := int32(len(out) + 1)
		sx, sy := start%m.w, start/m.w
		reg := region{minX: sx, minY: sy, maxX: sx, maxY: sy}

		labels[start] = id
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := i%m.w, i/m.w
			reg.pixels++
			if x < reg.minX {
				reg.minX = x
			}
			if x > reg.maxX {
				reg.maxX = x
			}
			if y < reg.minY {
				reg.minY = y
			}
			if y > reg.maxY {
				reg.maxY = y
			}
			for _, d := range neighbours8 {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
					continue
				}
				j := ny*m.w + nx
				if m.pix[j] == 1 && labels[j] == 0 {
					labels[j] = id
					queue = append(queue, j)
				}
			}
		}
		reg.area = enclosedArea(labels, m.w, reg, id)
		out = append(out, reg)
	}
	return out
}

// enclosedArea counts the bounding-box cells not reachable from the box
// border through cells outside the region. Background is 4-connected when
// the foreground is 8-connected, so the flood uses 4 neighbours. Other
// regions nested inside a hole count as enclosed.
func enclosedArea(labels []int32, stride int, r region, id int32) int {
	bw, bh := r.maxX-r.minX+1, r.maxY-r.minY+1
	outside := make([]bool, bw*bh)
	var stack []int

	push := func(lx, ly int) {
		li := ly*bw + lx
		if outside[li] || labels[(r.minY+ly)*stride+r.minX+lx] == id {
			return
		}
		outside[li] = true
		stack = append(stack, li)
	}
	for lx := 0; lx < bw; lx++ {
		push(lx, 0)
		push(lx, bh-1)
	}
	for ly := 0; ly < bh; ly++ {
		push(0, ly)
		push(bw-1, ly)
	}

	reached := 0
	for len(stack) > 0 {
		li := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		reached++
		lx, ly := li%bw, li/bw
		for _, d := range neighbours4 {
			nx, ny := lx+d[0], ly+d[1]
			if nx < 0 || ny < 0 || nx >= bw || ny >= bh {
				continue
			}
			push(nx, ny)
		}
	}
	return bw*bh - reached
}

// largest returns the index of the region with the greatest enclosed area.
// The first region in raster order wins a tie.
func largest(rs []region) int {
	best := -1
	for i, r := range rs {
		if best < 0 || r.area > rs[best].area {
			best = i
		}
	}
	return best
}
