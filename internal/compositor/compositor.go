package compositor

import (
	"fmt"
	"math"
	"sync"

	"github.com/ivlev/spritelab/internal/layout"
)

// ErrInvalidGeometry is returned for rects with non-positive extent, for
// non-positive aspect ratios or display heights, and for render boxes
// larger than MaxRenderSize.
var ErrInvalidGeometry = layout.ErrInvalidGeometry

// MaxRenderSize caps either side of a render box in pixels
const MaxRenderSize = 16384

// Composition describes how to show exactly one frame rect undistorted:
// the render box size plus the background scale and position (in percent)
// of the whole sheet inside that box.
type Composition struct {
	RenderWidth  float64
	RenderHeight float64
	ScaleX       float64 // Sheet width as a multiple of the render width
	ScaleY       float64
	OffsetX      float64 // Anchor position of the sheet, 0-100%
	OffsetY      float64
	Mirrored     bool
}

// Compose maps rect onto a render box of the given display height.
// sourceAspect is width/height of the sheet in pixels.
func Compose(rect layout.FrameRect, sourceAspect, displayHeight float64) (Composition, error) {
	if err := rect.Validate(); err != nil {
		return Composition{}, err
	}
	if !layout.Positive(sourceAspect) || !layout.Positive(displayHeight) {
		return Composition{}, fmt.Errorf("%w: aspect=%g height=%g", ErrInvalidGeometry, sourceAspect, displayHeight)
	}

	// The rect's own ratio lives in percent space; projecting it back onto
	// the sheet's pixel geometry gives the visual ratio of the crop.
	visualAR := rect.AspectRatio() * sourceAspect

	c := Composition{
		RenderWidth:  displayHeight * visualAR,
		RenderHeight: displayHeight,
		ScaleX:       100 / rect.W,
		ScaleY:       100 / rect.H,
		OffsetX:      travelOffset(rect.X, rect.W),
		OffsetY:      travelOffset(rect.Y, rect.H),
		Mirrored:     rect.Flipped,
	}
	if !(c.RenderWidth <= MaxRenderSize) || !(c.RenderHeight <= MaxRenderSize) {
		return Composition{}, fmt.Errorf("%w: render box %gx%g exceeds %d px", ErrInvalidGeometry, c.RenderWidth, c.RenderHeight, MaxRenderSize)
	}
	return c, nil
}

// travelOffset places pos within the available travel (100 - extent).
// A full-extent rect has no travel and is pinned to 0.
func travelOffset(pos, extent float64) float64 {
	if extent == 100 {
		return 0
	}
	return pos / (100 - extent) * 100
}

// Size returns the render box rounded to whole pixels
func (c Composition) Size() (w, h int) {
	return int(math.Round(c.RenderWidth)), int(math.Round(c.RenderHeight))
}

// Window returns the visible part of the sheet as fractions (0-1) of its
// width and height. The window may extend past [0,1] for rects that crop
// outside the sheet.
func (c Composition) Window() (x0, y0, x1, y1 float64) {
	x0 = windowStart(c.ScaleX, c.OffsetX)
	y0 = windowStart(c.ScaleY, c.OffsetY)
	return x0, y0, x0 + 1/c.ScaleX, y0 + 1/c.ScaleY
}

// windowStart inverts the background-position rule: a sheet scaled by s and
// anchored at p% starts (s-1)*p/100 render widths left of the box.
func windowStart(scale, offset float64) float64 {
	return (scale - 1) * offset / 100 / scale
}

type cacheKey struct {
	rect          layout.FrameRect
	sourceAspect  float64
	displayHeight float64
}

// Cache memoizes Compose results. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]Composition
}

func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]Composition)}
}

// Compose returns the memoized composition, computing it on first use.
// Errors are not cached.
func (c *Cache) Compose(rect layout.FrameRect, sourceAspect, displayHeight float64) (Composition, error) {
	key := cacheKey{rect, sourceAspect, displayHeight}

	c.mu.Lock()
	comp, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return comp, nil
	}

	comp, err := Compose(rect, sourceAspect, displayHeight)
	if err != nil {
		return Composition{}, err
	}

	c.mu.Lock()
	c.entries[key] = comp
	c.mu.Unlock()
	return comp, nil
}

// Len reports the number of memoized entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Reset drops all entries, e.g. when the sheet changes
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]Composition)
	c.mu.Unlock()
}
