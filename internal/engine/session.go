package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/spritelab/internal/analyzer"
	"github.com/ivlev/spritelab/internal/compositor"
	"github.com/ivlev/spritelab/internal/config"
	"github.com/ivlev/spritelab/internal/layout"
	"github.com/ivlev/spritelab/internal/overlay"
	"github.com/ivlev/spritelab/internal/scheduler"
)

var ErrNoSheet = errors.New("no sprite sheet loaded")

// Display carries descriptive metadata of a sheet
type Display struct {
	Name   string
	Width  int
	Height int
}

// SpriteSheet is the composite image together with its frame geometry.
// Image and Frames are replaced together; Frames alone on edits.
type SpriteSheet struct {
	ID        uuid.UUID
	Image     image.Image
	Frames    layout.Sequence
	Display   Display
	CreatedAt time.Time
}

// Aspect returns width/height of the sheet in pixels
func (sh *SpriteSheet) Aspect() float64 {
	return float64(sh.Display.Width) / float64(sh.Display.Height)
}

// Session owns the sheet, the animation cursor and the preview settings.
// All mutation goes through its methods.
type Session struct {
	mu      sync.RWMutex
	sheet   *SpriteSheet
	bounds  layout.Bounds
	toggles overlay.Toggles
	fps     float64
	scale   float64

	baseHeight  int
	stageWidth  int
	stageHeight int

	cache *compositor.Cache
	sched *scheduler.Scheduler
}

// NewSession creates an empty session whose animation clock is driven by
// ticks.
func NewSession(cfg *config.Config, ticks scheduler.TickSource) *Session {
	return &Session{
		bounds:      cfg.EditBounds,
		toggles:     cfg.Overlays,
		fps:         config.ClampFPS(cfg.FPS),
		scale:       config.ClampScale(cfg.PreviewScale),
		baseHeight:  cfg.BasePreviewHeight,
		stageWidth:  cfg.StageWidth,
		stageHeight: cfg.StageHeight,
		cache:       compositor.NewCache(),
		sched:       scheduler.New(ticks),
	}
}

// ReplaceSheet installs a new image with its frames (nil frames means the
// default tiling). The cursor rewinds to frame 0. On error the previous
// sheet stays.
func (s *Session) ReplaceSheet(img image.Image, frames layout.Sequence, name string) (*SpriteSheet, error) {
	if img == nil {
		return nil, fmt.Errorf("replace sheet: nil image")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("replace sheet: empty image")
	}
	if frames == nil {
		frames = layout.Default()
	}
	if err := frames.Validate(layout.FrameCount); err != nil {
		return nil, fmt.Errorf("replace sheet: %w", err)
	}

	sheet := &SpriteSheet{
		ID:        uuid.New(),
		Image:     img,
		Frames:    frames.Clone(),
		Display:   Display{Name: name, Width: b.Dx(), Height: b.Dy()},
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sheet = sheet
	s.cache.Reset()
	s.mu.Unlock()

	s.sched.Reset()
	return sheet.snapshot(), nil
}

// Sheet returns a snapshot of the current sheet
func (s *Session) Sheet() (*SpriteSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sheet == nil {
		return nil, ErrNoSheet
	}
	return s.sheet.snapshot(), nil
}

func (sh *SpriteSheet) snapshot() *SpriteSheet {
	cp := *sh
	cp.Frames = sh.Frames.Clone()
	return &cp
}

// Frames returns a copy of the current frame sequence
func (s *Session) Frames() (layout.Sequence, error) {
	sheet, err := s.Sheet()
	if err != nil {
		return nil, err
	}
	return sheet.Frames, nil
}

// UpdateRect applies p to frame i, clamped to the editing bounds. An
// invalid result is rejected and the previous rect kept.
func (s *Session) UpdateRect(i int, p layout.Patch) (layout.FrameRect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sheet == nil {
		return layout.FrameRect{}, ErrNoSheet
	}
	if i < 0 || i >= len(s.sheet.Frames) {
		return layout.FrameRect{}, fmt.Errorf("%w: %d", layout.ErrFrameIndex, i)
	}

	next := s.bounds.ClampPatch(p).Apply(s.sheet.Frames[i])
	if err := next.Validate(); err != nil {
		return s.sheet.Frames[i], fmt.Errorf("frame %d: %w", i, err)
	}

	frames := s.sheet.Frames.Clone()
	frames[i] = next
	s.sheet.Frames = frames
	return next, nil
}

// ToggleFlip mirrors frame i. Only that frame's composition changes.
func (s *Session) ToggleFlip(i int) (layout.FrameRect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sheet == nil {
		return layout.FrameRect{}, ErrNoSheet
	}
	if i < 0 || i >= len(s.sheet.Frames) {
		return layout.FrameRect{}, fmt.Errorf("%w: %d", layout.ErrFrameIndex, i)
	}

	frames := s.sheet.Frames.Clone()
	frames[i].Flipped = !frames[i].Flipped
	s.sheet.Frames = frames
	return frames[i], nil
}

// ReplaceFrames swaps the whole sequence, e.g. after loading a layout file
func (s *Session) ReplaceFrames(frames layout.Sequence) error {
	if err := frames.Validate(layout.FrameCount); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sheet == nil {
		return ErrNoSheet
	}
	s.sheet.Frames = frames.Clone()
	return nil
}

// AutoAlign detects the pose in every cell and replaces the frames with the
// proposal, clamped to the editing bounds. The sequence is untouched on
// failure.
func (s *Session) AutoAlign(ctx context.Context, d analyzer.Detector, opts analyzer.AlignOptions) (layout.Sequence, error) {
	sheet, err := s.Sheet()
	if err != nil {
		return nil, err
	}

	proposal, err := analyzer.Align(ctx, sheet.Image, d, opts)
	if err != nil {
		return nil, fmt.Errorf("smart align: %w", err)
	}

	s.mu.RLock()
	bounds := s.bounds
	s.mu.RUnlock()
	// Only sizes are clamped: detected positions are already on the sheet
	for i, r := range proposal {
		size := layout.Patch{W: layout.Float(r.W), H: layout.Float(r.H), Flipped: layout.Bool(sheet.Frames[i].Flipped)}
		proposal[i] = bounds.ClampPatch(size).Apply(r)
	}

	if err := s.ReplaceFrames(proposal); err != nil {
		return nil, fmt.Errorf("smart align: %w", err)
	}
	return proposal.Clone(), nil
}

// SetToggles replaces the overlay switches
func (s *Session) SetToggles(t overlay.Toggles) {
	s.mu.Lock()
	s.toggles = t
	s.mu.Unlock()
}

func (s *Session) Toggles() overlay.Toggles {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.toggles
}

// SetBounds replaces the editing bounds for subsequent edits
func (s *Session) SetBounds(b layout.Bounds) {
	s.mu.Lock()
	s.bounds = b
	s.mu.Unlock()
}

// SetFPS clamps fps to 1-60 and applies it to the running clock without
// moving the cursor
func (s *Session) SetFPS(fps float64) float64 {
	fps = config.ClampFPS(fps)
	s.mu.Lock()
	s.fps = fps
	s.mu.Unlock()

	// fps is positive after clamping
	s.sched.SetRate(fps)
	return fps
}

func (s *Session) FPS() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fps
}

// SetZoom clamps the preview scale to 0.5-3.0
func (s *Session) SetZoom(scale float64) float64 {
	scale = config.ClampScale(scale)
	s.mu.Lock()
	s.scale = scale
	s.mu.Unlock()
	return scale
}

// DisplayHeight is the frame height on the stage at the current zoom
func (s *Session) DisplayHeight() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return float64(s.baseHeight) * s.scale
}

// Play starts the animation clock. onAdvance receives every new frame
// index. Playing while already playing keeps the running clock.
func (s *Session) Play(onAdvance func(index int)) error {
	frames, err := s.Frames()
	if err != nil {
		return err
	}
	return s.sched.Start(s.FPS(), len(frames), onAdvance)
}

// Pause stops the clock; safe to call at any time
func (s *Session) Pause() {
	s.sched.Stop()
}

func (s *Session) Playing() bool {
	return s.sched.State() == scheduler.Running
}

// Current returns the frame under the cursor
func (s *Session) Current() int {
	return s.sched.Index()
}

// Close releases the animation clock
func (s *Session) Close() {
	s.sched.Stop()
}

// Compose returns the composition of frame i at the current zoom
func (s *Session) Compose(i int) (compositor.Composition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sheet == nil {
		return compositor.Composition{}, ErrNoSheet
	}
	if i < 0 || i >= len(s.sheet.Frames) {
		return compositor.Composition{}, fmt.Errorf("%w: %d", layout.ErrFrameIndex, i)
	}
	return s.cache.Compose(s.sheet.Frames[i], s.sheet.Aspect(), float64(s.baseHeight)*s.scale)
}

// Params returns the overlay parameters of the current state
func (s *Session) Params() (overlay.Params, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sheet == nil {
		return overlay.Params{}, ErrNoSheet
	}
	return s.params(), nil
}

func (s *Session) params() overlay.Params {
	return overlay.Params{
		SourceAspect:  s.sheet.Aspect(),
		DisplayHeight: float64(s.baseHeight) * s.scale,
		MinWidth:      s.stageWidth,
		MinHeight:     s.stageHeight,
		Toggles:       s.toggles,
	}
}

// Scene derives the overlays for frame i
func (s *Session) Scene(i int) (overlay.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sheet == nil {
		return overlay.Scene{}, ErrNoSheet
	}
	return overlay.DeriveCached(s.cache, s.sheet.Frames, i, s.params())
}

// RenderFrame cuts frame i out of the sheet at the current zoom
func (s *Session) RenderFrame(i int) (*image.RGBA, error) {
	c, err := s.Compose(i)
	if err != nil {
		return nil, err
	}
	sheet, err := s.Sheet()
	if err != nil {
		return nil, err
	}
	return compositor.Render(sheet.Image, c), nil
}

// RenderStage draws the full preview of frame i with its overlays
func (s *Session) RenderStage(i int) (*image.RGBA, error) {
	scene, err := s.Scene(i)
	if err != nil {
		return nil, err
	}
	sheet, err := s.Sheet()
	if err != nil {
		return nil, err
	}
	return overlay.Draw(sheet.Image, scene)
}
