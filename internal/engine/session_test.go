package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/spritelab/internal/analyzer"
	"github.com/ivlev/spritelab/internal/compositor"
	"github.com/ivlev/spritelab/internal/config"
	"github.com/ivlev/spritelab/internal/layout"
	"github.com/ivlev/spritelab/internal/scheduler"
)

// testSheet is 400x200 with a small opaque sprite in every transparent
// 100x100 cell
func testSheet() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for i := 0; i < layout.FrameCount; i++ {
		row, col := layout.Cell(i)
		r := image.Rect(col*100+40, row*100+20, col*100+60, row*100+80)
		draw.Draw(img, r, image.NewUniform(color.RGBA{uint8(30 * i), 100, 200, 255}), image.Point{}, draw.Src)
	}
	return img
}

func newTestSession(t *testing.T) (*Session, *scheduler.ManualTicks) {
	t.Helper()
	cfg := config.Default()
	cfg.FPS = 12
	ticks := &scheduler.ManualTicks{}
	s := NewSession(cfg, ticks)
	if _, err := s.ReplaceSheet(testSheet(), nil, "test"); err != nil {
		t.Fatalf("ReplaceSheet: %v", err)
	}
	return s, ticks
}

func TestReplaceSheet(t *testing.T) {
	s, _ := newTestSession(t)
	first, _ := s.Sheet()

	if first.Display.Width != 400 || first.Aspect() != 2 {
		t.Errorf("display = %+v", first.Display)
	}
	if err := first.Frames.Validate(layout.FrameCount); err != nil {
		t.Error(err)
	}

	second, err := s.ReplaceSheet(testSheet(), nil, "again")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID == first.ID {
		t.Error("sheet id reused")
	}

	bad := layout.Default()[:3]
	if _, err := s.ReplaceSheet(testSheet(), bad, "bad"); !errors.Is(err, layout.ErrFrameCount) {
		t.Errorf("short sequence: got %v", err)
	}
	current, _ := s.Sheet()
	if current.ID != second.ID {
		t.Error("failed replace changed the sheet")
	}
}

func TestNoSheet(t *testing.T) {
	s := NewSession(config.Default(), &scheduler.ManualTicks{})
	if _, err := s.Compose(0); !errors.Is(err, ErrNoSheet) {
		t.Errorf("Compose: %v", err)
	}
	if _, err := s.UpdateRect(0, layout.Patch{}); !errors.Is(err, ErrNoSheet) {
		t.Errorf("UpdateRect: %v", err)
	}
	if err := s.Play(nil); !errors.Is(err, ErrNoSheet) {
		t.Errorf("Play: %v", err)
	}
	s.Pause()
}

func TestUpdateRectClampsAndRejects(t *testing.T) {
	s, _ := newTestSession(t)

	got, err := s.UpdateRect(2, layout.Patch{W: layout.Float(80)})
	if err != nil {
		t.Fatal(err)
	}
	if got.W != 25 {
		t.Errorf("W = %g, want clamped 25", got.W)
	}

	s.SetBounds(layout.Bounds{})
	prev, _ := s.Frames()
	if _, err := s.UpdateRect(2, layout.Patch{H: layout.Float(0)}); !errors.Is(err, layout.ErrInvalidGeometry) {
		t.Errorf("zero height: got %v", err)
	}
	after, _ := s.Frames()
	if after[2] != prev[2] {
		t.Errorf("rejected edit changed frame: %+v", after[2])
	}

	if _, err := s.UpdateRect(8, layout.Patch{}); !errors.Is(err, layout.ErrFrameIndex) {
		t.Errorf("index 8: got %v", err)
	}
}

func TestToggleFlipAffectsOnlyMirrored(t *testing.T) {
	s, _ := newTestSession(t)

	before := make([]compositor.Composition, layout.FrameCount)
	for i := range before {
		c, err := s.Compose(i)
		if err != nil {
			t.Fatal(err)
		}
		before[i] = c
	}

	if _, err := s.ToggleFlip(3); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < layout.FrameCount; i++ {
		c, _ := s.Compose(i)
		if i == 3 {
			if !c.Mirrored {
				t.Error("frame 3 not mirrored")
			}
			c.Mirrored = false
		}
		if c != before[i] {
			t.Errorf("frame %d composition changed: %+v", i, c)
		}
	}
}

func TestToggleFlipConcurrent(t *testing.T) {
	s, _ := newTestSession(t)

	const toggles = 101
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ToggleFlip(2); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	frames, _ := s.Frames()
	if !frames[2].Flipped {
		t.Errorf("%d toggles left frame 2 unflipped", toggles)
	}
	if frames[1].Flipped || frames[3].Flipped {
		t.Error("neighbouring frames flipped")
	}
}

func TestImportedRectsNeverPanic(t *testing.T) {
	s, _ := newTestSession(t)
	before, _ := s.Sheet()

	nan := layout.Default()
	nan[0].W = math.NaN()
	if _, err := s.ReplaceSheet(testSheet(), nan, "nan"); !errors.Is(err, layout.ErrInvalidGeometry) {
		t.Errorf("NaN width: got %v", err)
	}
	inf := layout.Default()
	inf[5].H = math.Inf(1)
	if _, err := s.ReplaceSheet(testSheet(), inf, "inf"); !errors.Is(err, layout.ErrInvalidGeometry) {
		t.Errorf("Inf height: got %v", err)
	}
	if current, _ := s.Sheet(); current.ID != before.ID {
		t.Error("rejected import replaced the sheet")
	}

	huge := layout.Default()
	huge[0].W = 1e9
	if _, err := s.ReplaceSheet(testSheet(), huge, "huge"); err != nil {
		t.Fatalf("finite rect rejected on import: %v", err)
	}
	if _, err := s.RenderFrame(0); !errors.Is(err, layout.ErrInvalidGeometry) {
		t.Errorf("RenderFrame: got %v", err)
	}
	if _, err := s.RenderStage(0); !errors.Is(err, layout.ErrInvalidGeometry) {
		t.Errorf("RenderStage: got %v", err)
	}
	if _, err := s.RenderFrame(1); err != nil {
		t.Errorf("other frames should still render: %v", err)
	}
}

func TestPlayAdvancesCursor(t *testing.T) {
	s, ticks := newTestSession(t)
	defer s.Close()

	var seen []int
	if err := s.Play(func(i int) { seen = append(seen, i) }); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		ticks.Advance(100 * time.Millisecond)
	}
	if len(seen) != 10 || s.Current() != 10%layout.FrameCount {
		t.Errorf("seen %v, current %d", seen, s.Current())
	}

	s.SetFPS(500)
	if s.FPS() != 60 {
		t.Errorf("fps not clamped: %g", s.FPS())
	}

	s.Pause()
	s.Pause()
	idx := s.Current()
	ticks.Advance(time.Second)
	if s.Current() != idx || s.Playing() {
		t.Error("cursor moved after Pause")
	}
}

func TestReplaceSheetRewindsCursor(t *testing.T) {
	s, ticks := newTestSession(t)
	s.Play(nil)
	ticks.Advance(100 * time.Millisecond)
	ticks.Advance(100 * time.Millisecond)
	if s.Current() == 0 {
		t.Fatal("cursor did not move")
	}
	s.ReplaceSheet(testSheet(), nil, "new")
	if s.Current() != 0 {
		t.Errorf("cursor = %d after sheet change", s.Current())
	}
	s.Close()
}

func TestRenderStage(t *testing.T) {
	s, _ := newTestSession(t)
	s.SetZoom(0.5)

	img, err := s.RenderStage(0)
	if err != nil {
		t.Fatalf("RenderStage: %v", err)
	}
	// stage floor is 560x392 from the defaults
	if img.Bounds().Dx() != 560 || img.Bounds().Dy() != 392 {
		t.Errorf("stage = %v", img.Bounds())
	}

	frame, err := s.RenderFrame(0)
	if err != nil {
		t.Fatal(err)
	}
	// 140 * (25/50) * 2 = 140
	if frame.Bounds().Dx() != 140 || frame.Bounds().Dy() != 140 {
		t.Errorf("frame = %v", frame.Bounds())
	}
}

func TestAutoAlign(t *testing.T) {
	s, _ := newTestSession(t)
	s.ToggleFlip(1)

	seq, err := s.AutoAlign(context.Background(), analyzer.NewSilhouetteDetector(), analyzer.DefaultAlignOptions())
	if err != nil {
		t.Fatalf("AutoAlign: %v", err)
	}
	frames, _ := s.Frames()
	for i := range seq {
		if frames[i] != seq[i] {
			t.Errorf("frame %d not applied", i)
		}
		// sprite 20x60 plus 2px padding on a 400x200 sheet
		if seq[i].W != 6 || seq[i].H != 32 {
			t.Errorf("frame %d = %+v", i, seq[i])
		}
	}
	if !frames[1].Flipped {
		t.Error("flip lost during align")
	}
}

func TestAutoAlignFailureKeepsFrames(t *testing.T) {
	s, _ := newTestSession(t)
	before, _ := s.Frames()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.AutoAlign(ctx, analyzer.NewSilhouetteDetector(), analyzer.DefaultAlignOptions()); err == nil {
		t.Fatal("expected error")
	}
	after, _ := s.Frames()
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("frame %d changed", i)
		}
	}
}
