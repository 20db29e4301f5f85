package analyzer

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/spritelab/internal/layout"
)

// AlignOptions control how detected silhouettes become frame rects
type AlignOptions struct {
	Columns, Rows int
	Padding       int  // Pixels added around each silhouette
	Uniform       bool // Give every frame the size of the largest pose
}

func DefaultAlignOptions() AlignOptions {
	return AlignOptions{Columns: layout.Columns, Rows: layout.Rows, Padding: 2, Uniform: true}
}

// Align detects the sprite inside every grid cell of sheet in parallel and
// proposes one frame rect per cell. Empty cells keep the whole cell. With
// Uniform set, all rects share the largest size and stay centred on their
// silhouette horizontally with the silhouette's bottom edge as the ground.
func Align(ctx context.Context, sheet image.Image, d Detector, opts AlignOptions) (layout.Sequence, error) {
	b := sheet.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("empty sheet")
	}
	if opts.Columns <= 0 || opts.Rows <= 0 {
		return nil, fmt.Errorf("invalid grid %dx%d", opts.Columns, opts.Rows)
	}

	n := opts.Columns * opts.Rows
	cells := make([]image.Rectangle, n)
	boxes := make([]image.Rectangle, n)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		cells[i] = cellRect(b, i, opts.Columns, opts.Rows)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			blocks, err := d.Detect(subImage(sheet, cells[i]))
			if err != nil {
				return fmt.Errorf("cell %d: %w", i, err)
			}
			u := Union(blocks)
			if u.Empty() {
				boxes[i] = cells[i]
				return nil
			}
			boxes[i] = u.Inset(-opts.Padding).Intersect(cells[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if opts.Uniform {
		boxes = uniform(boxes, b)
	}

	seq := make(layout.Sequence, n)
	for i, r := range boxes {
		seq[i] = toPercent(r, b)
	}
	return seq, nil
}

// cellRect returns the pixel rectangle of grid cell i
func cellRect(b image.Rectangle, i, columns, rows int) image.Rectangle {
	row, col := i/columns, i%columns
	x0 := b.Min.X + col*b.Dx()/columns
	x1 := b.Min.X + (col+1)*b.Dx()/columns
	y0 := b.Min.Y + row*b.Dy()/rows
	y1 := b.Min.Y + (row+1)*b.Dy()/rows
	return image.Rect(x0, y0, x1, y1)
}

func subImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(r)
	draw.Draw(dst, r, img, r.Min, draw.Src)
	return dst
}

// uniform resizes every box to the largest width and height, anchored at
// the box's bottom centre and shifted back inside the sheet if needed
func uniform(boxes []image.Rectangle, sheet image.Rectangle) []image.Rectangle {
	var w, h int
	for _, r := range boxes {
		w = max(w, r.Dx())
		h = max(h, r.Dy())
	}

	out := make([]image.Rectangle, len(boxes))
	for i, r := range boxes {
		cx := (r.Min.X + r.Max.X) / 2
		x0 := cx - w/2
		y0 := r.Max.Y - h

		x0 = max(sheet.Min.X, min(x0, sheet.Max.X-w))
		y0 = max(sheet.Min.Y, min(y0, sheet.Max.Y-h))
		out[i] = image.Rect(x0, y0, x0+w, y0+h)
	}
	return out
}

func toPercent(r, sheet image.Rectangle) layout.FrameRect {
	sw, sh := float64(sheet.Dx()), float64(sheet.Dy())
	return layout.FrameRect{
		X: round2(float64(r.Min.X-sheet.Min.X) / sw * 100),
		Y: round2(float64(r.Min.Y-sheet.Min.Y) / sh * 100),
		W: round2(float64(r.Dx()) / sw * 100),
		H: round2(float64(r.Dy()) / sh * 100),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
