package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ivlev/spritelab/internal/compositor"
)

const badgeSize = 12

var (
	fontOnce   sync.Once
	fontSource *text.FontSource
	fontErr    error
)

func badgeFont() (*text.FontSource, error) {
	fontOnce.Do(func() {
		fontSource, fontErr = text.NewFontSource(goregular.TTF)
	})
	return fontSource, fontErr
}

// Draw rasterizes scene with frames cut from sheet. Layers are painted
// bottom-up: backdrop, ghost, outline, frame, guides, anchor, hitbox, badge.
func Draw(sheet image.Image, scene Scene) (*image.RGBA, error) {
	canvas, err := backdrop(scene.Stage)
	if err != nil {
		return nil, fmt.Errorf("backdrop: %w", err)
	}

	if scene.Ghost != nil {
		ghost := compositor.Render(sheet, scene.Ghost.Composition)
		tone(ghost, scene.Ghost.Grayscale, scene.Ghost.Brightness, scene.Ghost.Opacity)
		draw.Draw(canvas, scene.Ghost.Bounds(), ghost, image.Point{}, draw.Over)
	}

	frame := compositor.Render(sheet, scene.Frame.Composition)
	if scene.Outline != nil {
		mask := dilate(frame)
		draw.DrawMask(canvas, scene.Frame.Bounds().Inset(-1), image.NewUniform(*scene.Outline), image.Point{}, mask, mask.Bounds().Min, draw.Over)
	}
	draw.Draw(canvas, scene.Frame.Bounds(), frame, image.Point{}, draw.Over)

	return vectors(canvas, scene)
}

// backdrop paints the stage background with its 40px grid
func backdrop(stage image.Point) (*image.RGBA, error) {
	dc := gg.NewContext(stage.X, stage.Y)
	defer dc.Close()

	dc.ClearWithColor(gg.FromColor(BackdropColor))
	setColor(dc, GridColor)
	dc.SetLineWidth(1)
	for x := 0; x < stage.X; x += GridSpacing {
		dc.DrawLine(float64(x)+0.5, 0, float64(x)+0.5, float64(stage.Y))
	}
	for y := 0; y < stage.Y; y += GridSpacing {
		dc.DrawLine(0, float64(y)+0.5, float64(stage.X), float64(y)+0.5)
	}
	if err := dc.Stroke(); err != nil {
		return nil, err
	}
	return toRGBA(dc.Image()), nil
}

// vectors draws the line and box overlays plus the badge over canvas
func vectors(canvas *image.RGBA, scene Scene) (*image.RGBA, error) {
	dc := gg.NewContextForImage(canvas)
	defer dc.Close()

	for _, set := range [][]Line{scene.Guides, scene.Anchor} {
		for _, l := range set {
			setColor(dc, l.Color)
			dc.SetLineWidth(l.Width)
			dc.DrawLine(l.X0, l.Y0, l.X1, l.Y1)
			if err := dc.Stroke(); err != nil {
				return nil, err
			}
		}
	}

	if b := scene.Hitbox; b != nil {
		dc.DrawRectangle(b.X, b.Y, b.W, b.H)
		setColor(dc, b.Fill)
		if err := dc.FillPreserve(); err != nil {
			return nil, err
		}
		setColor(dc, b.Stroke)
		dc.SetLineWidth(1)
		if err := dc.Stroke(); err != nil {
			return nil, err
		}
	}

	if scene.Badge != "" {
		source, err := badgeFont()
		if err != nil {
			return nil, fmt.Errorf("load badge font: %w", err)
		}
		dc.SetFont(source.Face(badgeSize))
		tw, th := dc.MeasureString(scene.Badge)

		dc.DrawRoundedRectangle(BadgeInset, BadgeInset, tw+24, th+8, 6)
		setColor(dc, BadgeBack)
		if err := dc.Fill(); err != nil {
			return nil, err
		}
		setColor(dc, BadgeColor)
		dc.DrawString(scene.Badge, BadgeInset+12, BadgeInset+4+th)
	}

	return toRGBA(dc.Image()), nil
}

func setColor(dc *gg.Context, c color.NRGBA) {
	dc.SetRGBA(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255, float64(c.A)/255)
}

// tone applies grayscale, brightness and opacity to a premultiplied image in
// that order, the way a CSS filter chain followed by opacity would.
func tone(img *image.RGBA, grayscale bool, brightness, opacity float64) {
	for i := 0; i+3 < len(img.Pix); i += 4 {
		a := float64(img.Pix[i+3])
		if a == 0 {
			continue
		}
		r, g, b := float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
		if grayscale {
			lum := 0.2126*r + 0.7152*g + 0.0722*b
			r, g, b = lum, lum, lum
		}
		if brightness > 0 {
			r, g, b = min(r*brightness, a), min(g*brightness, a), min(b*brightness, a)
		}
		img.Pix[i] = uint8(r * opacity)
		img.Pix[i+1] = uint8(g * opacity)
		img.Pix[i+2] = uint8(b * opacity)
		img.Pix[i+3] = uint8(a * opacity)
	}
}

// dilate returns the silhouette of img shifted by one pixel up, down, left
// and right (the pixels themselves included), in a mask one pixel larger on
// each side. Diagonal neighbours are not grown.
var plus = [...]image.Point{{0, 0}, {1, 0}, {-1, 0}, {0, 1}, {0, -1}}

func dilate(img *image.RGBA) *image.Alpha {
	b := img.Bounds()
	mask := image.NewAlpha(b.Inset(-1))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			a := img.Pix[img.PixOffset(x, y)+3]
			if a == 0 {
				continue
			}
			for _, d := range plus {
				off := mask.PixOffset(x+d.X, y+d.Y)
				if mask.Pix[off] < a {
					mask.Pix[off] = a
				}
			}
		}
	}
	return mask
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
