package compositor

import (
	"errors"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/ivlev/spritelab/internal/layout"
)

const sheetAspect = 1024.0 / 576.0

func TestComposeDefaultCell(t *testing.T) {
	c, err := Compose(layout.FrameRect{X: 25, Y: 50, W: 25, H: 50}, sheetAspect, 280)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if c.RenderHeight != 280 {
		t.Errorf("Expected render height 280, got %f", c.RenderHeight)
	}
	wantW := 280 * 0.5 * sheetAspect
	if math.Abs(c.RenderWidth-wantW) > 1e-9 {
		t.Errorf("Expected render width %f, got %f", wantW, c.RenderWidth)
	}
	if c.ScaleX != 4 || c.ScaleY != 2 {
		t.Errorf("Expected scale 4x2, got %fx%f", c.ScaleX, c.ScaleY)
	}
	if math.Abs(c.OffsetX-100.0/3) > 1e-9 {
		t.Errorf("Expected offsetX 33.33, got %f", c.OffsetX)
	}
	if c.OffsetY != 100 {
		t.Errorf("Expected offsetY 100, got %f", c.OffsetY)
	}
	if c.Mirrored {
		t.Error("Unexpected mirroring")
	}
}

func TestComposeScaleIsExact(t *testing.T) {
	for _, w := range []float64{0.5, 5, 12.5, 25, 33, 50, 99.9, 100} {
		for _, h := range []float64{1, 10, 50, 100} {
			c, err := Compose(layout.FrameRect{X: 3, Y: 7, W: w, H: h}, sheetAspect, 336)
			if err != nil {
				t.Fatalf("Compose(w=%g,h=%g) failed: %v", w, h, err)
			}
			if c.ScaleX != 100/w || c.ScaleY != 100/h {
				t.Errorf("w=%g h=%g: scale %g,%g", w, h, c.ScaleX, c.ScaleY)
			}
			if c.RenderWidth <= 0 || c.RenderHeight <= 0 {
				t.Errorf("w=%g h=%g: non-positive render size %gx%g", w, h, c.RenderWidth, c.RenderHeight)
			}
		}
	}
}

func TestComposeFullExtentPinsOffset(t *testing.T) {
	c, err := Compose(layout.FrameRect{X: 40, Y: 20, W: 100, H: 100}, sheetAspect, 280)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if c.OffsetX != 0 || c.OffsetY != 0 {
		t.Errorf("Expected zero offsets, got %f,%f", c.OffsetX, c.OffsetY)
	}
	if math.IsNaN(c.OffsetX) || math.IsInf(c.OffsetX, 0) {
		t.Error("Offset is not finite")
	}
}

func TestComposeInvalidGeometry(t *testing.T) {
	tests := []struct {
		name   string
		rect   layout.FrameRect
		aspect float64
		height float64
	}{
		{"zero width", layout.FrameRect{W: 0, H: 50}, sheetAspect, 280},
		{"negative height", layout.FrameRect{W: 25, H: -1}, sheetAspect, 280},
		{"zero aspect", layout.FrameRect{W: 25, H: 50}, 0, 280},
		{"zero height", layout.FrameRect{W: 25, H: 50}, sheetAspect, 0},
		{"nan width", layout.FrameRect{W: math.NaN(), H: 50}, sheetAspect, 280},
		{"inf height", layout.FrameRect{W: 25, H: math.Inf(1)}, sheetAspect, 280},
		{"nan position", layout.FrameRect{X: math.NaN(), W: 25, H: 50}, sheetAspect, 280},
		{"nan aspect", layout.FrameRect{W: 25, H: 50}, math.NaN(), 280},
		{"inf height param", layout.FrameRect{W: 25, H: 50}, sheetAspect, math.Inf(1)},
		{"huge width", layout.FrameRect{W: 1e9, H: 50}, sheetAspect, 280},
		{"sliver height", layout.FrameRect{W: 25, H: 1e-6}, sheetAspect, 280},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compose(tt.rect, tt.aspect, tt.height)
			if !errors.Is(err, ErrInvalidGeometry) {
				t.Errorf("Expected ErrInvalidGeometry, got %v", err)
			}
		})
	}
}

func TestFlipAffectsOnlyMirrored(t *testing.T) {
	seq := layout.Default()
	before := make([]Composition, len(seq))
	for i, r := range seq {
		before[i], _ = Compose(r, sheetAspect, 280)
	}

	flipped, err := seq.With(5, layout.Patch{Flipped: layout.Bool(true)})
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}

	for i, r := range flipped {
		after, _ := Compose(r, sheetAspect, 280)
		want := before[i]
		if i == 5 {
			want.Mirrored = true
		}
		if after != want {
			t.Errorf("Frame %d: expected %+v, got %+v", i, want, after)
		}
	}
}

func TestWindowMatchesRect(t *testing.T) {
	tests := []struct {
		rect           layout.FrameRect
		x0, y0, x1, y1 float64
	}{
		{layout.FrameRect{X: 0, Y: 0, W: 25, H: 50}, 0, 0, 0.25, 0.5},
		{layout.FrameRect{X: 75, Y: 50, W: 25, H: 50}, 0.75, 0.5, 1, 1},
		{layout.FrameRect{X: 10, Y: 5, W: 20, H: 40}, 0.1, 0.05, 0.3, 0.45},
		{layout.FrameRect{X: 90, Y: 0, W: 25, H: 50}, 0.9, 0, 1.15, 0.5},
		{layout.FrameRect{X: 30, Y: 0, W: 100, H: 100}, 0, 0, 1, 1},
	}

	for _, tt := range tests {
		c, err := Compose(tt.rect, sheetAspect, 280)
		if err != nil {
			t.Fatalf("Compose failed: %v", err)
		}
		x0, y0, x1, y1 := c.Window()
		got := []float64{x0, y0, x1, y1}
		want := []float64{tt.x0, tt.y0, tt.x1, tt.y1}
		for k := range got {
			if math.Abs(got[k]-want[k]) > 1e-9 {
				t.Errorf("%+v: window %v, want %v", tt.rect, got, want)
				break
			}
		}
	}
}

func TestCache(t *testing.T) {
	cache := NewCache()
	r := layout.FrameRect{X: 25, Y: 0, W: 25, H: 50}

	a, err := cache.Compose(r, sheetAspect, 280)
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	b, _ := cache.Compose(r, sheetAspect, 280)
	if a != b {
		t.Error("Cached composition differs")
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", cache.Len())
	}

	if _, err := cache.Compose(layout.FrameRect{W: 0, H: 1}, sheetAspect, 280); err == nil {
		t.Error("Expected error")
	}
	if cache.Len() != 1 {
		t.Errorf("Errors must not be cached, got %d entries", cache.Len())
	}

	cache.Reset()
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache after Reset")
	}
}

// quadrantSheet builds an 8x4 sheet whose 4x2 cells each have a distinct
// color, with the left half of cell 0 red and its right half green.
func quadrantSheet() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 8; x++ {
			cell := (y/2)*4 + x/2
			img.Set(x, y, color.RGBA{R: uint8(cell * 30), G: 10, B: 200, A: 255})
		}
	}
	for y := 0; y < 2; y++ {
		img.Set(0, y, color.RGBA{R: 255, A: 255})
		img.Set(1, y, color.RGBA{G: 255, A: 255})
	}
	return img
}

func TestRenderCropsCell(t *testing.T) {
	sheet := quadrantSheet()
	seq := layout.Default()

	c, _ := Compose(seq[6], 2, 4)
	out := Render(sheet, c)
	w, h := c.Size()
	if out.Bounds().Dx() != w || out.Bounds().Dy() != h {
		t.Fatalf("Expected %dx%d, got %v", w, h, out.Bounds())
	}

	want := color.RGBA{R: 6 * 30, G: 10, B: 200, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if got := out.RGBAAt(x, y); got != want {
				t.Fatalf("Pixel (%d,%d): expected %v, got %v", x, y, want, got)
			}
		}
	}
}

func TestRenderMirrored(t *testing.T) {
	sheet := quadrantSheet()
	rect := layout.Default()[0]

	c, _ := Compose(rect, 2, 4)
	plain := Render(sheet, c)
	rect.Flipped = true
	c, _ = Compose(rect, 2, 4)
	flipped := Render(sheet, c)

	w := plain.Bounds().Dx()
	if plain.RGBAAt(0, 0).R != 255 || plain.RGBAAt(w-1, 0).G != 255 {
		t.Fatalf("Unexpected unflipped render: %v %v", plain.RGBAAt(0, 0), plain.RGBAAt(w-1, 0))
	}
	if flipped.RGBAAt(0, 0).G != 255 || flipped.RGBAAt(w-1, 0).R != 255 {
		t.Errorf("Render was not mirrored: %v %v", flipped.RGBAAt(0, 0), flipped.RGBAAt(w-1, 0))
	}
}

func TestRenderOutsideSheetIsTransparent(t *testing.T) {
	sheet := quadrantSheet()
	c, _ := Compose(layout.FrameRect{X: 150, Y: 0, W: 25, H: 50}, 2, 4)

	out := Render(sheet, c)
	for _, p := range []int{3, 7, 11} {
		if out.Pix[p] != 0 {
			t.Fatalf("Expected transparent output, got alpha %d", out.Pix[p])
		}
	}
}

func TestFilter(t *testing.T) {
	c, _ := Compose(layout.FrameRect{X: 25, Y: 0, W: 25, H: 50, Flipped: true}, sheetAspect, 280)
	filter := Filter(c)

	for _, part := range []string{"crop=iw*0.250000:ih*0.500000:iw*0.250000:ih*0.000000", "scale=249:280", "hflip"} {
		if !strings.Contains(filter, part) {
			t.Errorf("Filter %q should contain %q", filter, part)
		}
	}

	t.Logf("Generated filter: %s", filter)
}
