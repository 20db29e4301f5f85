package engine

import (
	"context"
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ivlev/spritelab/internal/config"
	"github.com/ivlev/spritelab/internal/layout"
	"github.com/ivlev/spritelab/internal/payload"
	"github.com/ivlev/spritelab/internal/scheduler"
	"github.com/ivlev/spritelab/internal/video"
)

// recordingEncoder captures encode jobs instead of running ffmpeg
type recordingEncoder struct {
	params video.Params
	frames []*image.RGBA
	order  []int
	crops  []string
}

func (r *recordingEncoder) Encode(ctx context.Context, path string, p video.Params, frames []*image.RGBA, order []int) error {
	r.params, r.frames, r.order = p, frames, order
	return os.WriteFile(path, []byte("mp4"), 0644)
}

func (r *recordingEncoder) Crop(ctx context.Context, img image.Image, filter, path string) error {
	r.crops = append(r.crops, filter)
	return os.WriteFile(path, []byte("png"), 0644)
}

func newTestProject(t *testing.T) (*Project, *recordingEncoder) {
	t.Helper()
	cfg := config.Default()
	cfg.FPS = 12
	cfg.Workers = 3
	s := NewSession(cfg, &scheduler.ManualTicks{})
	if _, err := s.ReplaceSheet(testSheet(), nil, "test"); err != nil {
		t.Fatal(err)
	}
	enc := &recordingEncoder{}
	return NewProject(cfg, s, enc), enc
}

func TestLoopOrder(t *testing.T) {
	// 12 fps animation sampled at 24 fps output: every frame shown twice
	order, err := LoopOrder(12, 24, 8, 32)
	if err != nil {
		t.Fatal(err)
	}
	for k, idx := range order {
		if want := (k / 2) % 8; idx != want {
			t.Errorf("output frame %d shows %d, want %d", k, idx, want)
		}
	}

	if _, err := LoopOrder(0, 24, 8, 1); err == nil {
		t.Error("expected error for zero fps")
	}
}

func TestExportFrames(t *testing.T) {
	p, _ := newTestProject(t)
	dir := filepath.Join(t.TempDir(), "frames")

	paths, err := p.ExportFrames(context.Background(), dir)
	if err != nil {
		t.Fatalf("ExportFrames: %v", err)
	}
	if len(paths) != layout.FrameCount {
		t.Fatalf("got %d paths", len(paths))
	}
	for i, path := range paths {
		if path != FramePath(dir, i) {
			t.Errorf("path %d = %s", i, path)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		cfg, _, err := image.DecodeConfig(f)
		f.Close()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if cfg.Width != 280 || cfg.Height != 280 {
			t.Errorf("frame %d size %dx%d", i, cfg.Width, cfg.Height)
		}
	}
}

func TestExportFramesFFmpeg(t *testing.T) {
	p, enc := newTestProject(t)
	p.Config.Renderer = "ffmpeg"

	if _, err := p.ExportFrames(context.Background(), t.TempDir()); err != nil {
		t.Fatal(err)
	}
	if len(enc.crops) != layout.FrameCount {
		t.Fatalf("got %d crop jobs", len(enc.crops))
	}
	for _, f := range enc.crops {
		if !strings.HasPrefix(f, "crop=") {
			t.Errorf("unexpected filter %q", f)
		}
	}
}

func TestExportVideo(t *testing.T) {
	p, enc := newTestProject(t)
	p.Config.Duration = 2
	p.Config.VideoRate = 24
	path := filepath.Join(t.TempDir(), "out", "loop.mp4")

	if err := p.ExportVideo(context.Background(), path); err != nil {
		t.Fatalf("ExportVideo: %v", err)
	}
	if len(enc.order) != 48 {
		t.Errorf("encoded %d output frames, want 48", len(enc.order))
	}
	if len(enc.frames) != layout.FrameCount {
		t.Errorf("rendered %d stages", len(enc.frames))
	}
	for i, f := range enc.frames {
		if f.Bounds().Dx() != enc.params.Width || f.Bounds().Dy() != enc.params.Height {
			t.Errorf("stage %d is %v, encoder expects %dx%d", i, f.Bounds(), enc.params.Width, enc.params.Height)
		}
	}
	if _, err := os.Stat(path); err != nil {
		t.Error(err)
	}
	// An unresolved "auto" encoder falls back to x264 defaults
	if enc.params.Encoder != "libx264" || enc.params.Quality != 23 {
		t.Errorf("encoder = %s/%d", enc.params.Encoder, enc.params.Quality)
	}

	p.Config.VideoEncoder, p.Config.Quality = "h264_nvenc", 31
	if err := p.ExportVideo(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if enc.params.Encoder != "h264_nvenc" || enc.params.Quality != 31 {
		t.Errorf("configured encoder overridden: %s/%d", enc.params.Encoder, enc.params.Quality)
	}

	p.Config.Duration = 0
	if err := p.ExportVideo(context.Background(), path); err == nil {
		t.Error("expected error for zero duration")
	}
}

func TestExportAnchor(t *testing.T) {
	p, _ := newTestProject(t)
	path := filepath.Join(t.TempDir(), "anchor.png")

	encoded, err := p.ExportAnchor(path)
	if err != nil {
		t.Fatal(err)
	}
	if payload.Normalize(encoded) != encoded {
		t.Error("anchor payload not canonical")
	}
	img, err := payload.DecodeImage(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 1024 || img.Bounds().Dy() != 576 {
		t.Errorf("anchor size %v", img.Bounds())
	}
}

func TestRefineRequest(t *testing.T) {
	p, _ := newTestProject(t)
	s := p.Session
	s.ToggleFlip(0)

	req, err := s.RefineRequest("make it pixel art")
	if err != nil {
		t.Fatal(err)
	}

	var frames []map[string]interface{}
	if err := json.Unmarshal(req.Frames, &frames); err != nil {
		t.Fatal(err)
	}
	if len(frames) != layout.FrameCount || frames[0]["flipped"] != true {
		t.Errorf("frames = %v", frames)
	}
	for _, key := range []string{"x", "y", "w", "h", "flipped"} {
		if _, ok := frames[1][key]; !ok {
			t.Errorf("wire object missing %q", key)
		}
	}

	parts := req.Parts()
	if len(parts) != 3 || parts[0].Data != req.Anchor || parts[0].Label != AnchorLabel {
		t.Errorf("anchor must come first: %+v", parts[0])
	}
	if !strings.Contains(parts[2].Data, "make it pixel art") {
		t.Errorf("instruction missing: %q", parts[2].Data)
	}
}

func TestApplyRefined(t *testing.T) {
	p, _ := newTestProject(t)
	s := p.Session
	s.UpdateRect(4, layout.Patch{X: layout.Float(10)})
	before, _ := s.Sheet()

	if _, err := s.ApplyRefined("data:image/png;base64,@@@"); err == nil {
		t.Fatal("expected decode failure")
	}
	same, _ := s.Sheet()
	if same.ID != before.ID {
		t.Error("failed refine replaced the sheet")
	}

	encoded, _ := payload.EncodePNG(testSheet())
	after, err := s.ApplyRefined(payload.DataURL(encoded))
	if err != nil {
		t.Fatal(err)
	}
	if after.ID == before.ID {
		t.Error("sheet id not renewed")
	}
	if after.Frames[4].X != 10 {
		t.Errorf("frames not kept: %+v", after.Frames[4])
	}
}
