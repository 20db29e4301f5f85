package compositor

import (
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Render materializes c against the sheet into a new RGBA of the rounded
// render size. Pixels are scaled nearest-neighbour to keep pixel art crisp.
func Render(sheet image.Image, c Composition) *image.RGBA {
	w, h := c.Size()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	RenderInto(dst, sheet, c)
	return dst
}

// RenderInto draws c into dst, which is cleared first. dst bounds define the
// render box; callers reusing pooled buffers pass one sized by c.Size.
func RenderInto(dst *image.RGBA, sheet image.Image, c Composition) {
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)

	sb := sheet.Bounds()
	db := dst.Bounds()
	if sb.Empty() || db.Empty() {
		return
	}

	x0, y0, x1, y1 := c.Window()
	sx0, sx1, dx0, dx1, okX := clipAxis(x0, x1, float64(sb.Dx()), float64(db.Dx()))
	sy0, sy1, dy0, dy1, okY := clipAxis(y0, y1, float64(sb.Dy()), float64(db.Dy()))
	if !okX || !okY {
		return
	}

	sr := image.Rect(sb.Min.X+sx0, sb.Min.Y+sy0, sb.Min.X+sx1, sb.Min.Y+sy1)
	dr := image.Rect(db.Min.X+dx0, db.Min.Y+dy0, db.Min.X+dx1, db.Min.Y+dy1)
	xdraw.NearestNeighbor.Scale(dst, dr, sheet, sr, xdraw.Src, nil)

	if c.Mirrored {
		mirror(dst)
	}
}

// clipAxis intersects the window [f0,f1] (fractions of the sheet) with the
// sheet and maps the surviving part to destination pixels.
func clipAxis(f0, f1, srcLen, dstLen float64) (s0, s1, d0, d1 int, ok bool) {
	span := f1 - f0
	if span <= 0 {
		return 0, 0, 0, 0, false
	}
	c0 := math.Max(f0, 0)
	c1 := math.Min(f1, 1)
	if c1 <= c0 {
		return 0, 0, 0, 0, false
	}

	s0 = int(math.Round(c0 * srcLen))
	s1 = int(math.Round(c1 * srcLen))
	d0 = int(math.Round((c0 - f0) / span * dstLen))
	d1 = int(math.Round((c1 - f0) / span * dstLen))
	if s1 <= s0 || d1 <= d0 {
		return 0, 0, 0, 0, false
	}
	return s0, s1, d0, d1, true
}

// mirror flips img horizontally in place
func mirror(img *image.RGBA) {
	b := img.Bounds()
	w := b.Dx()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Min.X, y)+w*4]
		for l, r := 0, w-1; l < r; l, r = l+1, r-1 {
			li, ri := l*4, r*4
			for k := 0; k < 4; k++ {
				row[li+k], row[ri+k] = row[ri+k], row[li+k]
			}
		}
	}
}
