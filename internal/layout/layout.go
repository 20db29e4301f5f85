package layout

import (
	"errors"
	"fmt"
	"math"
)

// Grid topology of a composite sheet. The anchor generator and the default
// tiling below must agree on these.
const (
	Columns    = 4
	Rows       = 2
	FrameCount = Columns * Rows
)

var (
	// ErrInvalidGeometry marks a rect with non-positive width or height.
	ErrInvalidGeometry = errors.New("invalid geometry")
	ErrFrameIndex      = errors.New("frame index out of range")
	ErrFrameCount      = errors.New("unexpected frame count")
)

// FrameRect is a sub-rectangle of the source sheet. X, Y, W and H are
// percentages (0-100) of the sheet's width and height.
type FrameRect struct {
	X       float64 `json:"x" yaml:"x"`
	Y       float64 `json:"y" yaml:"y"`
	W       float64 `json:"w" yaml:"w"`
	H       float64 `json:"h" yaml:"h"`
	Flipped bool    `json:"flipped" yaml:"flipped"`
}

// Validate reports ErrInvalidGeometry for zero, negative or non-finite
// extents and for non-finite positions. Positions outside [0,100] are
// allowed and crop outside the sheet.
func (r FrameRect) Validate() error {
	if !Positive(r.W) || !Positive(r.H) {
		return fmt.Errorf("%w: w=%g h=%g", ErrInvalidGeometry, r.W, r.H)
	}
	if !finite(r.X) || !finite(r.Y) {
		return fmt.Errorf("%w: x=%g y=%g", ErrInvalidGeometry, r.X, r.Y)
	}
	return nil
}

// Positive reports whether v is a finite number above zero. NaN fails.
func Positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AspectRatio is W/H of the rect in percentage space.
func (r FrameRect) AspectRatio() float64 {
	return r.W / r.H
}

// Sequence is the ordered set of frame rects, index i mapping row-major to
// grid cell (i/Columns, i%Columns).
type Sequence []FrameRect

// Default returns the even 4x2 tiling.
func Default() Sequence {
	return Tiling(Columns, Rows)
}

// Tiling evenly divides the sheet into columns x rows cells.
func Tiling(columns, rows int) Sequence {
	seq := make(Sequence, columns*rows)
	cw := 100.0 / float64(columns)
	ch := 100.0 / float64(rows)
	for i := range seq {
		seq[i] = FrameRect{
			X: float64(i%columns) * cw,
			Y: float64(i/columns) * ch,
			W: cw,
			H: ch,
		}
	}
	return seq
}

// Cell returns the grid row and column of frame i.
func Cell(i int) (row, col int) {
	return i / Columns, i % Columns
}

// Clone returns an independent copy.
func (s Sequence) Clone() Sequence {
	out := make(Sequence, len(s))
	copy(out, s)
	return out
}

// Validate checks length and every rect.
func (s Sequence) Validate(frameCount int) error {
	if len(s) != frameCount {
		return fmt.Errorf("%w: got %d, want %d", ErrFrameCount, len(s), frameCount)
	}
	for i, r := range s {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

// Patch is a partial update of a FrameRect; nil fields are left unchanged.
type Patch struct {
	X, Y, W, H *float64
	Flipped    *bool
}

// Apply returns r with the patch applied. The result is not validated.
func (p Patch) Apply(r FrameRect) FrameRect {
	if p.X != nil {
		r.X = *p.X
	}
	if p.Y != nil {
		r.Y = *p.Y
	}
	if p.W != nil {
		r.W = *p.W
	}
	if p.H != nil {
		r.H = *p.H
	}
	if p.Flipped != nil {
		r.Flipped = *p.Flipped
	}
	return r
}

// With returns a copy of s where index i is replaced by p applied to it.
// The receiver is never modified; on error s stays authoritative.
func (s Sequence) With(i int, p Patch) (Sequence, error) {
	if i < 0 || i >= len(s) {
		return nil, fmt.Errorf("%w: %d", ErrFrameIndex, i)
	}
	next := p.Apply(s[i])
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("frame %d: %w", i, err)
	}
	out := s.Clone()
	out[i] = next
	return out, nil
}

// Float is a helper for building patches.
func Float(v float64) *float64 { return &v }

// Bool is a helper for building patches.
func Bool(v bool) *bool { return &v }
