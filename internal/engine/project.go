package engine

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/spritelab/internal/anchor"
	"github.com/ivlev/spritelab/internal/compositor"
	"github.com/ivlev/spritelab/internal/config"
	"github.com/ivlev/spritelab/internal/layout"
	"github.com/ivlev/spritelab/internal/overlay"
	"github.com/ivlev/spritelab/internal/payload"
	"github.com/ivlev/spritelab/internal/scheduler"
	"github.com/ivlev/spritelab/internal/system"
	"github.com/ivlev/spritelab/internal/video"
)

// Project runs the batch operations of the CLI on top of a session
type Project struct {
	Config  *config.Config
	Session *Session
	Encoder video.VideoEncoder
	Pool    *system.ImagePool

	stats []phase
}

type phase struct {
	name     string
	duration time.Duration
}

func NewProject(cfg *config.Config, session *Session, ve video.VideoEncoder) *Project {
	return &Project{
		Config:  cfg,
		Session: session,
		Encoder: ve,
		Pool:    system.NewImagePool(),
	}
}

func (p *Project) workers(jobs int) int {
	n := p.Config.Workers
	if n <= 0 {
		n = system.WorkerCount()
	}
	return max(1, min(n, jobs))
}

func (p *Project) track(name string, start time.Time) {
	p.stats = append(p.stats, phase{name: name, duration: time.Since(start)})
}

// FramePath names the exported PNG of frame i
func FramePath(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("frame_%02d.png", i+1))
}

// ExportFrames writes every frame at the current zoom as a PNG in dir,
// rendering in parallel
func (p *Project) ExportFrames(ctx context.Context, dir string) ([]string, error) {
	defer p.track("frames", time.Now())

	sheet, err := p.Session.Sheet()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	n := len(sheet.Frames)
	paths := make([]string, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers(n))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c, err := p.Session.Compose(i)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}

			path := FramePath(dir, i)
			if p.Config.Renderer == "ffmpeg" {
				err = p.Encoder.Crop(ctx, sheet.Image, compositor.Filter(c), path)
			} else {
				err = p.writeFrame(sheet.Image, c, path)
			}
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}

			paths[i] = path
			fmt.Printf("[>] Кадр готов: %d/%d\n", i+1, n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (p *Project) writeFrame(sheet image.Image, c compositor.Composition, path string) error {
	w, h := c.Size()
	buf := p.Pool.Get(w, h)
	defer p.Pool.Put(buf)

	compositor.RenderInto(buf, sheet, c)
	return writePNG(buf, path)
}

// LoopOrder returns the frame shown at each of total output frames when the
// animation runs at fps and the output at rate frames per second. The
// animation clock is simulated, so the order matches live playback.
func LoopOrder(fps, rate float64, frameCount, total int) ([]int, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%w: output rate %g", scheduler.ErrInvalidRate, rate)
	}
	ticks := &scheduler.ManualTicks{}
	sched := scheduler.New(ticks)
	if err := sched.Start(fps, frameCount, nil); err != nil {
		return nil, err
	}
	defer sched.Stop()

	// Tick times are rounded per output frame so they never drift below
	// the animation period
	order := make([]int, 0, total)
	for k := 0; k < total; k++ {
		order = append(order, sched.Index())
		next := time.Duration(math.Round(float64(k+1) * float64(time.Second) / rate))
		ticks.Advance(next - ticks.Now())
	}
	return order, nil
}

// ExportVideo renders the preview stage of every frame and encodes the
// animation loop for the configured duration
func (p *Project) ExportVideo(ctx context.Context, path string) error {
	sheet, err := p.Session.Sheet()
	if err != nil {
		return err
	}
	params, err := p.Session.Params()
	if err != nil {
		return err
	}

	// One stage size for the whole loop
	stage, err := overlay.FitStage(sheet.Frames, params)
	if err != nil {
		return err
	}
	params.MinWidth, params.MinHeight = stage.X, stage.Y

	renderStart := time.Now()
	n := len(sheet.Frames)
	stages := make([]*image.RGBA, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers(n))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scene, err := overlay.Derive(sheet.Frames, i, params)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			img, err := overlay.Draw(sheet.Image, scene)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			stages[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	p.track("stage render", renderStart)

	rate := p.Config.VideoRate
	total := int(math.Round(p.Config.Duration * rate))
	if total <= 0 {
		return fmt.Errorf("длительность видео должна быть положительной: %.2fs", p.Config.Duration)
	}
	order, err := LoopOrder(p.Session.FPS(), rate, n, total)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	p.Config.ResolveEncoder(nil)
	fmt.Printf("[*] Кодирование %d кадров (%dx%d @ %g FPS, анимация %g FPS)...\n", total, stage.X, stage.Y, rate, p.Session.FPS())
	encodeStart := time.Now()
	err = p.Encoder.Encode(ctx, path, video.Params{
		Width:   stage.X,
		Height:  stage.Y,
		Rate:    rate,
		Encoder: p.Config.VideoEncoder,
		Quality: p.Config.Quality,
	}, stages, order)
	if err != nil {
		return fmt.Errorf("ошибка кодирования видео: %w", err)
	}
	p.track("encode", encodeStart)
	return nil
}

// ExportStage writes the preview of frame i with overlays
func (p *Project) ExportStage(i int, path string) error {
	img, err := p.Session.RenderStage(i)
	if err != nil {
		return err
	}
	return writePNG(img, path)
}

// ExportAnchor writes the reference grid as a PNG and returns its
// canonical payload
func (p *Project) ExportAnchor(path string) (string, error) {
	defer p.track("anchor", time.Now())

	img, err := anchor.Generate(anchorGrid(p.Config))
	if err != nil {
		return "", err
	}
	if err := writePNG(img, path); err != nil {
		return "", err
	}
	return payload.EncodePNG(img)
}

func anchorGrid(cfg *config.Config) (columns, rows, width, height int) {
	w, h := cfg.AnchorWidth, cfg.AnchorHeight
	if w <= 0 || h <= 0 {
		w, h = anchor.DefaultWidth, anchor.DefaultHeight
	}
	return layout.Columns, layout.Rows, w, h
}

// Report prints the timing of every finished phase and appends a line to
// benchmark.log when stats are enabled
func (p *Project) Report(total time.Duration) {
	if !p.Config.ShowStats {
		return
	}
	fmt.Println("--- [PERFORMANCE REPORT] ---")
	fmt.Printf("Build: %s\n", p.Config.BuildVersion)
	fmt.Printf("Total Time: %.2fs\n", total.Seconds())
	for _, ph := range p.stats {
		fmt.Printf("%s: %.2fs\n", ph.name, ph.duration.Seconds())
	}
	fmt.Println(system.MemoryReport())
	fmt.Println("----------------------------")

	logEntry := fmt.Sprintf("[%s] Build: %s | Input: %s | Mode: %s | Total: %.2fs\n",
		time.Now().Format("2006-01-02 15:04:05"),
		p.Config.BuildVersion,
		filepath.Base(p.Config.InputPath),
		p.Config.Mode,
		total.Seconds(),
	)
	f, err := os.OpenFile("benchmark.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Printf("[!] Не удалось записать benchmark.log: %v\n", err)
		return
	}
	f.WriteString(logEntry)
	f.Close()
}

func writePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
