// Package overlay derives the alignment aids drawn over the animation
// preview (guides, onion skin, anchor line, outline, hitbox) and rasterizes
// them onto a stage canvas.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/ivlev/spritelab/internal/compositor"
	"github.com/ivlev/spritelab/internal/layout"
)

// Toggles switch the individual overlays on and off
type Toggles struct {
	Guides     bool `yaml:"guides"`
	OnionSkin  bool `yaml:"onion_skin"`
	AnchorLine bool `yaml:"anchor_line"`
	Outline    bool `yaml:"outline"`
	Hitbox     bool `yaml:"hitbox"`
}

// DefaultToggles matches the editor's initial state
func DefaultToggles() Toggles {
	return Toggles{Guides: true, AnchorLine: true}
}

// Visual parameters of the aids
const (
	GhostOpacity    = 0.2
	GhostBrightness = 2.0
	GroundFraction  = 0.2 // Ground line height measured from the stage bottom
	BadgeInset      = 24
	GridSpacing     = 40
)

var (
	GuideColor    = color.NRGBA{R: 255, G: 255, B: 255, A: 13}
	GroundColor   = color.NRGBA{R: 0x10, G: 0xb9, B: 0x81, A: 102}
	CenterColor   = color.NRGBA{R: 0x63, G: 0x66, B: 0xf1, A: 102}
	OutlineColor  = color.NRGBA{R: 0x63, G: 0x66, B: 0xf1, A: 255}
	HitboxStroke  = color.NRGBA{R: 0xef, G: 0x44, B: 0x44, A: 128}
	HitboxFill    = color.NRGBA{R: 0xef, G: 0x44, B: 0x44, A: 26}
	BadgeColor    = color.NRGBA{R: 0x81, G: 0x8c, B: 0xf8, A: 255}
	BadgeBack     = color.NRGBA{A: 153}
	BackdropColor = color.NRGBA{R: 0x0f, G: 0x17, B: 0x2a, A: 204}
	GridColor     = color.NRGBA{R: 0x4f, G: 0x46, B: 0xe5, A: 51}
)

// Params describe the preview surface
type Params struct {
	SourceAspect  float64 // Sheet width / height in pixels
	DisplayHeight float64 // Frame height on the stage
	MinWidth      int     // Stage never shrinks below these
	MinHeight     int
	Toggles       Toggles
}

// Layer is one composed frame placed on the stage
type Layer struct {
	Index       int
	Composition compositor.Composition
	Origin      image.Point // Top-left corner on the stage
	Opacity     float64
	Grayscale   bool
	Brightness  float64
}

// Bounds returns the stage rectangle covered by the layer
func (l Layer) Bounds() image.Rectangle {
	w, h := l.Composition.Size()
	return image.Rect(l.Origin.X, l.Origin.Y, l.Origin.X+w, l.Origin.Y+h)
}

// Line is a straight stroke in stage pixels
type Line struct {
	X0, Y0, X1, Y1 float64
	Width          float64
	Color          color.NRGBA
}

// Box is an axis-aligned rectangle with separate stroke and fill
type Box struct {
	X, Y, W, H float64
	Stroke     color.NRGBA
	Fill       color.NRGBA
}

// Scene is everything the stage shows for one cursor position. Optional
// overlays are nil or empty when toggled off.
type Scene struct {
	Stage   image.Point
	Frame   Layer
	Ghost   *Layer
	Outline *color.NRGBA
	Guides  []Line
	Anchor  []Line
	Hitbox  *Box
	Badge   string
}

// Badge returns the frame caption shown in the stage corner
func Badge(index int) string {
	return fmt.Sprintf("Frame 0%d", index+1)
}

// Previous is the onion-skin index preceding index with wraparound
func Previous(index, frameCount int) int {
	return (index - 1 + frameCount) % frameCount
}

// Derive computes the scene for frame index of seq. seq is only read.
func Derive(seq layout.Sequence, index int, p Params) (Scene, error) {
	return derive(seq, index, p, compositor.Compose)
}

// DeriveCached is Derive backed by a composition cache
func DeriveCached(cache *compositor.Cache, seq layout.Sequence, index int, p Params) (Scene, error) {
	return derive(seq, index, p, cache.Compose)
}

type composeFunc func(layout.FrameRect, float64, float64) (compositor.Composition, error)

func derive(seq layout.Sequence, index int, p Params, compose composeFunc) (Scene, error) {
	n := len(seq)
	if index < 0 || index >= n {
		return Scene{}, fmt.Errorf("%w: %d of %d", layout.ErrFrameIndex, index, n)
	}

	current, err := compose(seq[index], p.SourceAspect, p.DisplayHeight)
	if err != nil {
		return Scene{}, fmt.Errorf("frame %d: %w", index, err)
	}

	stage := StageSize(current, p)
	scene := Scene{
		Stage: stage,
		Frame: place(index, current, stage),
		Badge: Badge(index),
	}
	scene.Frame.Opacity = 1

	t := p.Toggles
	if t.OnionSkin {
		prev := Previous(index, n)
		ghost, err := compose(seq[prev], p.SourceAspect, p.DisplayHeight)
		if err != nil {
			return Scene{}, fmt.Errorf("onion frame %d: %w", prev, err)
		}
		layer := place(prev, ghost, stage)
		layer.Opacity = GhostOpacity
		layer.Grayscale = true
		layer.Brightness = GhostBrightness
		scene.Ghost = &layer
	}

	if t.Outline {
		c := OutlineColor
		scene.Outline = &c
	}

	w, h := float64(stage.X), float64(stage.Y)
	if t.Guides {
		scene.Guides = []Line{
			{X0: 0, Y0: h / 2, X1: w, Y1: h / 2, Width: 1, Color: GuideColor},
			{X0: w / 2, Y0: 0, X1: w / 2, Y1: h, Width: 1, Color: GuideColor},
		}
	}
	if t.AnchorLine {
		// 2px ground line whose lower edge sits 20% above the stage bottom
		ground := h - h*GroundFraction - 1
		scene.Anchor = []Line{
			{X0: 0, Y0: ground, X1: w, Y1: ground, Width: 2, Color: GroundColor},
			{X0: w / 2, Y0: 0, X1: w / 2, Y1: h, Width: 1, Color: CenterColor},
		}
	}

	if t.Hitbox {
		r := seq[index]
		bw := math.Round(p.DisplayHeight * r.W / r.H * p.SourceAspect)
		bh := math.Round(p.DisplayHeight)
		scene.Hitbox = &Box{
			X:      (w - bw) / 2,
			Y:      (h - bh) / 2,
			W:      bw,
			H:      bh,
			Stroke: HitboxStroke,
			Fill:   HitboxFill,
		}
	}

	return scene, nil
}

// StageSize grows the stage to fit the composed frame
func StageSize(c compositor.Composition, p Params) image.Point {
	w, h := c.Size()
	return image.Pt(max(w, p.MinWidth), max(h, p.MinHeight))
}

// place centers a composition on the stage
func place(index int, c compositor.Composition, stage image.Point) Layer {
	w, h := c.Size()
	return Layer{
		Index:       index,
		Composition: c,
		Origin:      image.Pt((stage.X-w)/2, (stage.Y-h)/2),
	}
}

// FitStage returns the smallest stage holding every frame of seq, so a
// whole loop renders at one size.
func FitStage(seq layout.Sequence, p Params) (image.Point, error) {
	stage := image.Pt(p.MinWidth, p.MinHeight)
	for i, r := range seq {
		c, err := compositor.Compose(r, p.SourceAspect, p.DisplayHeight)
		if err != nil {
			return image.Point{}, fmt.Errorf("frame %d: %w", i, err)
		}
		w, h := c.Size()
		stage.X = max(stage.X, w)
		stage.Y = max(stage.Y, h)
	}
	return stage, nil
}
