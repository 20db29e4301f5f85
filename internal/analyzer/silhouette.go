package analyzer

import (
	"image"
	"image/color"
)

// SilhouetteDetector separates sprites from a flat background. Transparent
// sheets are split on alpha; opaque ones on distance from the dominant
// border colour.
type SilhouetteDetector struct {
	AlphaThreshold uint8 // Minimum alpha of a foreground pixel
	Tolerance      int   // Max per-channel distance still counted as background
	MinBlockArea   int   // Smaller regions are treated as noise
	Dilation       int   // Radius used to merge nearby fragments
}

func NewSilhouetteDetector() *SilhouetteDetector {
	return &SilhouetteDetector{
		AlphaThreshold: 16,
		Tolerance:      24,
		MinBlockArea:   16,
		Dilation:       2,
	}
}

func (d *SilhouetteDetector) Detect(img image.Image) ([]Block, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}

	m := newMask(b)
	if transparentCorners(img) {
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA).A >= d.AlphaThreshold {
					m.set(x, y)
				}
			}
		}
	} else {
		bg := borderColor(img)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
				if distance(c, bg) > d.Tolerance {
					m.set(x, y)
				}
			}
		}
	}

	joined := m
	if d.Dilation > 0 {
		joined = m.dilate(d.Dilation, 1)
	}

	var blocks []Block
	for _, r := range joined.components(d.MinBlockArea) {
		// Dilation only joins fragments; the box hugs the undilated pixels
		r = m.extent(r)
		if r.Empty() {
			continue
		}
		blocks = append(blocks, Block{Rect: r, Type: "silhouette", Confidence: 0.9})
	}
	return blocks, nil
}

func transparentCorners(img image.Image) bool {
	b := img.Bounds()
	corners := []image.Point{
		b.Min,
		{X: b.Max.X - 1, Y: b.Min.Y},
		{X: b.Min.X, Y: b.Max.Y - 1},
		{X: b.Max.X - 1, Y: b.Max.Y - 1},
	}
	for _, p := range corners {
		if _, _, _, a := img.At(p.X, p.Y).RGBA(); a < 0x8000 {
			return true
		}
	}
	return false
}

// borderColor returns the most frequent colour on the image border,
// quantized to 5 bits per channel
func borderColor(img image.Image) color.NRGBA {
	b := img.Bounds()
	counts := make(map[color.NRGBA]int)
	samples := make(map[color.NRGBA]color.NRGBA)

	add := func(x, y int) {
		c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
		q := color.NRGBA{R: c.R &^ 7, G: c.G &^ 7, B: c.B &^ 7, A: c.A &^ 7}
		counts[q]++
		if _, ok := samples[q]; !ok {
			samples[q] = c
		}
	}
	for x := b.Min.X; x < b.Max.X; x++ {
		add(x, b.Min.Y)
		add(x, b.Max.Y-1)
	}
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		add(b.Min.X, y)
		add(b.Max.X-1, y)
	}

	var best color.NRGBA
	bestN := -1
	for q, n := range counts {
		// Ties broken on the key so the result does not depend on map order
		if n > bestN || (n == bestN && less(q, best)) {
			best, bestN = q, n
		}
	}
	return samples[best]
}

func less(a, b color.NRGBA) bool {
	if a.R != b.R {
		return a.R < b.R
	}
	if a.G != b.G {
		return a.G < b.G
	}
	if a.B != b.B {
		return a.B < b.B
	}
	return a.A < b.A
}

func distance(a, b color.NRGBA) int {
	return max(absDiff(a.R, b.R), absDiff(a.G, b.G), absDiff(a.B, b.B), absDiff(a.A, b.A))
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
