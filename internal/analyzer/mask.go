package analyzer

import "image"

// mask is a foreground bitmap over a rectangle of the source image
type mask struct {
	bounds image.Rectangle
	bits   []bool
}

func newMask(bounds image.Rectangle) *mask {
	return &mask{bounds: bounds, bits: make([]bool, bounds.Dx()*bounds.Dy())}
}

func (m *mask) index(x, y int) int {
	return (y-m.bounds.Min.Y)*m.bounds.Dx() + (x - m.bounds.Min.X)
}

func (m *mask) set(x, y int) {
	m.bits[m.index(x, y)] = true
}

func (m *mask) at(x, y int) bool {
	if !(image.Point{X: x, Y: y}).In(m.bounds) {
		return false
	}
	return m.bits[m.index(x, y)]
}

// extent returns the bounding box of the foreground pixels inside r
func (m *mask) extent(r image.Rectangle) image.Rectangle {
	r = r.Intersect(m.bounds)
	var out image.Rectangle
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if m.bits[m.index(x, y)] {
				out = out.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return out
}

// dilate grows the foreground by radius pixels, iterations times, so that
// nearby fragments (a sword, a loose strand of hair) join the main body
func (m *mask) dilate(radius, iterations int) *mask {
	cur := m
	for iter := 0; iter < iterations; iter++ {
		next := newMask(cur.bounds)
		for y := cur.bounds.Min.Y; y < cur.bounds.Max.Y; y++ {
			for x := cur.bounds.Min.X; x < cur.bounds.Max.X; x++ {
				if !cur.at(x, y) {
					continue
				}
				for ky := -radius; ky <= radius; ky++ {
					for kx := -radius; kx <= radius; kx++ {
						if p := (image.Point{X: x + kx, Y: y + ky}); p.In(next.bounds) {
							next.set(p.X, p.Y)
						}
					}
				}
			}
		}
		cur = next
	}
	return cur
}

// components returns the bounding boxes of 4-connected foreground regions
// of at least minArea pixels (bounding box area)
func (m *mask) components(minArea int) []image.Rectangle {
	visited := make([]bool, len(m.bits))
	var out []image.Rectangle

	for y := m.bounds.Min.Y; y < m.bounds.Max.Y; y++ {
		for x := m.bounds.Min.X; x < m.bounds.Max.X; x++ {
			i := m.index(x, y)
			if !m.bits[i] || visited[i] {
				continue
			}
			r := m.flood(visited, x, y)
			if r.Dx()*r.Dy() >= minArea {
				out = append(out, r)
			}
		}
	}
	return out
}

// flood marks the region containing (x, y) and returns its bounds
func (m *mask) flood(visited []bool, x, y int) image.Rectangle {
	minX, minY, maxX, maxY := x, y, x, y
	stack := []image.Point{{X: x, Y: y}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !m.at(p.X, p.Y) {
			continue
		}
		i := m.index(p.X, p.Y)
		if visited[i] {
			continue
		}
		visited[i] = true

		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)

		stack = append(stack,
			image.Point{X: p.X + 1, Y: p.Y},
			image.Point{X: p.X - 1, Y: p.Y},
			image.Point{X: p.X, Y: p.Y + 1},
			image.Point{X: p.X, Y: p.Y - 1},
		)
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}
