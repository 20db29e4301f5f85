package layout

// Range is an inclusive [Min, Max] interval in percent.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r Range) clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Bounds are the editing limits applied to per-frame edits. They are a
// caller-side convention: the compositor only requires W, H > 0.
type Bounds struct {
	Enabled bool  `yaml:"enabled"`
	X       Range `yaml:"x"`
	Y       Range `yaml:"y"`
	W       Range `yaml:"w"`
	H       Range `yaml:"h"`
}

// DefaultBounds matches one grid cell of travel: a frame may shrink to a
// fifth of a cell width and move anywhere a full cell could.
func DefaultBounds() Bounds {
	return Bounds{
		Enabled: true,
		X:       Range{Min: 0, Max: 75},
		Y:       Range{Min: 0, Max: 50},
		W:       Range{Min: 5, Max: 25},
		H:       Range{Min: 10, Max: 50},
	}
}

// Clamp limits r to the bounds. Disabled bounds return r unchanged.
func (b Bounds) Clamp(r FrameRect) FrameRect {
	if !b.Enabled {
		return r
	}
	r.X = b.X.clamp(r.X)
	r.Y = b.Y.clamp(r.Y)
	r.W = b.W.clamp(r.W)
	r.H = b.H.clamp(r.H)
	return r
}

// ClampPatch limits only the fields p sets, so untouched values of a rect
// outside the bounds (e.g. from an imported layout) survive an edit.
func (b Bounds) ClampPatch(p Patch) Patch {
	if !b.Enabled {
		return p
	}
	clampPtr := func(v *float64, r Range) *float64 {
		if v == nil {
			return nil
		}
		return Float(r.clamp(*v))
	}
	p.X = clampPtr(p.X, b.X)
	p.Y = clampPtr(p.Y, b.Y)
	p.W = clampPtr(p.W, b.W)
	p.H = clampPtr(p.H, b.H)
	return p
}
