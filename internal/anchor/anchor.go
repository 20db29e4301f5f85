// Package anchor rasterizes the reference grid handed to the image
// generation service as a spatial prior for the 4x2 sheet layout.
package anchor

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ivlev/spritelab/internal/layout"
	"github.com/ivlev/spritelab/internal/payload"
)

// Default canvas of the reference grid (16:9)
const (
	DefaultWidth  = 1024
	DefaultHeight = 576
)

// Label placement inside each cell, measured from the cell's top-left
// corner to the text baseline start.
const (
	labelSize    = 24
	labelOffsetX = 20
	labelOffsetY = 40
	lineWidth    = 2
)

var (
	fontOnce   sync.Once
	fontSource *text.FontSource
	fontErr    error
)

func labelFont() (*text.FontSource, error) {
	fontOnce.Do(func() {
		fontSource, fontErr = text.NewFontSource(goregular.TTF)
	})
	return fontSource, fontErr
}

// Label returns the caption drawn in the cell of frame index i
func Label(i int) string {
	return fmt.Sprintf("Frame %d", i+1)
}

// Generate draws columns-1 vertical and rows-1 horizontal separators plus a
// row-major "Frame N" label in every cell on a transparent canvas.
// Identical arguments always yield identical pixels.
func Generate(columns, rows, width, height int) (*image.RGBA, error) {
	if columns <= 0 || rows <= 0 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("anchor grid %dx%d on %dx%d canvas: non-positive dimension", columns, rows, width, height)
	}

	source, err := labelFont()
	if err != nil {
		return nil, fmt.Errorf("load label font: %w", err)
	}

	dc := gg.NewContext(width, height)
	defer dc.Close()

	cw := float64(width) / float64(columns)
	ch := float64(height) / float64(rows)

	dc.SetRGBA(200.0/255, 200.0/255, 200.0/255, 0.3)
	dc.SetLineWidth(lineWidth)
	for c := 1; c < columns; c++ {
		x := float64(c) * cw
		dc.DrawLine(x, 0, x, float64(height))
		if err := dc.Stroke(); err != nil {
			return nil, err
		}
	}
	for r := 1; r < rows; r++ {
		y := float64(r) * ch
		dc.DrawLine(0, y, float64(width), y)
		if err := dc.Stroke(); err != nil {
			return nil, err
		}
	}

	dc.SetFont(source.Face(labelSize))
	dc.SetRGBA(150.0/255, 150.0/255, 150.0/255, 0.5)
	for r := 0; r < rows; r++ {
		for c := 0; c < columns; c++ {
			dc.DrawString(Label(r*columns+c), float64(c)*cw+labelOffsetX, float64(r)*ch+labelOffsetY)
		}
	}

	return toRGBA(dc.Image()), nil
}

// GenerateDefault draws the grid matching the sheet layout
func GenerateDefault() (*image.RGBA, error) {
	return Generate(layout.Columns, layout.Rows, DefaultWidth, DefaultHeight)
}

// Payload returns the default grid as a canonical base64 PNG
func Payload() (string, error) {
	img, err := GenerateDefault()
	if err != nil {
		return "", err
	}
	return payload.EncodePNG(img)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
