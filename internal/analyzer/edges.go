package analyzer

import (
	"image"
	"image/color"
	"math"
)

// EdgeDetector finds sprites on textured or gradient backgrounds where a
// single background colour does not exist, using the Sobel gradient.
type EdgeDetector struct {
	MinBlockArea  int     // Minimum bounding box area in pixels
	EdgeThreshold float64 // Gradient magnitude threshold
	Dilation      int
}

func NewEdgeDetector() *EdgeDetector {
	return &EdgeDetector{
		MinBlockArea:  64,
		EdgeThreshold: 60,
		Dilation:      2,
	}
}

func (d *EdgeDetector) Detect(img image.Image) ([]Block, error) {
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return nil, nil
	}

	lum := luminance(img)
	w := b.Dx()
	at := func(x, y int) float64 { return lum[(y-b.Min.Y)*w+(x-b.Min.X)] }

	m := newMask(b)
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) -
				2*at(x-1, y) + 2*at(x+1, y) -
				at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if math.Hypot(gx, gy) > d.EdgeThreshold {
				m.set(x, y)
			}
		}
	}

	if d.Dilation > 0 {
		m = m.dilate(d.Dilation, 2)
	}

	var blocks []Block
	for _, r := range m.components(d.MinBlockArea) {
		blocks = append(blocks, Block{Rect: r.Intersect(b), Type: "edges", Confidence: 0.7})
	}
	return blocks, nil
}

// luminance flattens img into a row-major slice of gray levels. Transparent
// pixels count as black so alpha edges register as gradients.
func luminance(img image.Image) []float64 {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out = append(out, float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y))
		}
	}
	return out
}
