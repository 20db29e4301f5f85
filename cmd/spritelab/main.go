package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivlev/spritelab/internal/analyzer"
	"github.com/ivlev/spritelab/internal/config"
	"github.com/ivlev/spritelab/internal/engine"
	"github.com/ivlev/spritelab/internal/layout"
	"github.com/ivlev/spritelab/internal/payload"
	"github.com/ivlev/spritelab/internal/scheduler"
	"github.com/ivlev/spritelab/internal/source"
	"github.com/ivlev/spritelab/internal/system"
	"github.com/ivlev/spritelab/internal/video"
)

var BuildVersion = "dev"

func main() {
	// Создаем нужные директории, если их нет
	dirs := []string{"input/sheets", "output", layout.LayoutsDir}
	for _, d := range dirs {
		os.MkdirAll(d, 0755)
	}

	inputPtr := flag.String("input", "", "Путь к спрайт-листу PNG/JPEG/PDF (по умолчанию: самый свежий файл в input/sheets/)")
	layoutPtr := flag.String("layout", "", "Файл раскладки кадров YAML/JSON (latest - самый свежий в output/layouts/)")
	configPtr := flag.String("config", "", "YAML-файл настроек")
	modePtr := flag.String("mode", "preview", "Режим: preview, frames, video, anchor, layout, normalize, align, refine")
	outputPtr := flag.String("output", "", "Путь результата (если пусто, генерируется автоматически в output/)")
	fpsPtr := flag.Float64("fps", 8, "Скорость анимации (1-60)")
	zoomPtr := flag.Float64("zoom", 1, "Масштаб превью (0.5-3.0)")
	durationPtr := flag.Float64("duration", 4, "Длительность превью/видео в секундах")
	guidesPtr := flag.Bool("guides", true, "Направляющие по центру")
	onionPtr := flag.Bool("onion", false, "Onion skin: предыдущий кадр полупрозрачным")
	anchorPtr := flag.Bool("anchor-line", true, "Линия земли и центральная ось")
	outlinePtr := flag.Bool("outline", false, "Контур силуэта")
	hitboxPtr := flag.Bool("hitbox", false, "Хитбокс текущего кадра")
	workersPtr := flag.Int("workers", system.WorkerCount(), "Потоки")
	encoderPtr := flag.String("encoder", config.AutoEncoder, "Видеоэнкодер: auto, libx264, h264_nvenc, h264_videotoolbox")
	qualityPtr := flag.Int("quality", 0, "Качество видео (0 - авто, x264: CRF 1-51, VideoToolbox: битрейт = Q*100кбит/с)")
	detectorPtr := flag.String("detector", "silhouette", "Детектор для align: silhouette, edges")
	rendererPtr := flag.String("renderer", "software", "Рендер кадров: software, ffmpeg")
	promptPtr := flag.String("prompt", "", "Инструкция для refine")
	statsPtr := flag.Bool("stats", false, "Отчет о производительности")

	flag.Parse()

	cfg := config.Default()
	if *configPtr != "" {
		if err := config.Load(cfg, *configPtr); err != nil {
			log.Fatalf("[-] Ошибка конфигурации: %v", err)
		}
		fmt.Printf("[*] Настройки: %s\n", *configPtr)
	}

	// Явно заданные флаги важнее файла настроек
	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	set := func(name string, apply func()) {
		if explicit[name] || *configPtr == "" {
			apply()
		}
	}
	set("fps", func() { cfg.FPS = *fpsPtr })
	set("zoom", func() { cfg.PreviewScale = *zoomPtr })
	set("duration", func() { cfg.Duration = *durationPtr })
	set("guides", func() { cfg.Overlays.Guides = *guidesPtr })
	set("onion", func() { cfg.Overlays.OnionSkin = *onionPtr })
	set("anchor-line", func() { cfg.Overlays.AnchorLine = *anchorPtr })
	set("outline", func() { cfg.Overlays.Outline = *outlinePtr })
	set("hitbox", func() { cfg.Overlays.Hitbox = *hitboxPtr })
	set("workers", func() { cfg.Workers = *workersPtr })
	set("detector", func() { cfg.Detector = *detectorPtr })
	set("renderer", func() { cfg.Renderer = *rendererPtr })
	set("encoder", func() { cfg.VideoEncoder = *encoderPtr })
	set("quality", func() { cfg.Quality = *qualityPtr })
	if *inputPtr != "" {
		cfg.InputPath = *inputPtr
	}
	if *layoutPtr != "" {
		cfg.LayoutPath = *layoutPtr
	}
	if *outputPtr != "" {
		cfg.OutputPath = *outputPtr
	}
	cfg.Mode = *modePtr
	cfg.ShowStats = *statsPtr
	cfg.BuildVersion = BuildVersion
	cfg.Normalize()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()

	// normalize не требует спрайт-листа
	if cfg.Mode == "normalize" {
		if err := runNormalize(cfg); err != nil {
			log.Fatalf("[-] Ошибка: %v", err)
		}
		return
	}

	if cfg.InputPath == "" {
		latest, err := system.FindLatestSheet("input/sheets")
		if err != nil {
			log.Fatalf("[-] Ошибка: %v. Положите спрайт-лист в input/sheets/", err)
		}
		cfg.InputPath = latest
		fmt.Printf("[*] Выбран файл: %s\n", cfg.InputPath)
	}

	sheet, err := source.Load(cfg.InputPath, cfg.DPI)
	if err != nil {
		log.Fatalf("[-] Ошибка загрузки спрайт-листа: %v", err)
	}

	loop := scheduler.NewLoop(60)
	session := engine.NewSession(cfg, loop)
	defer session.Close()

	var frames layout.Sequence
	if cfg.LayoutPath != "" {
		path := cfg.LayoutPath
		if path == "latest" {
			path, err = layout.FindLatestLayout(layout.LayoutsDir)
			if err != nil {
				log.Fatalf("[-] Ошибка: %v", err)
			}
		}
		f, err := layout.ReadLayout(path)
		if err != nil {
			log.Fatalf("[-] Ошибка чтения раскладки: %v", err)
		}
		frames = f.Frames
		fmt.Printf("[*] Используется раскладка: %s\n", path)
	}

	info, err := session.ReplaceSheet(sheet, frames, filepath.Base(cfg.InputPath))
	if err != nil {
		log.Fatalf("[-] Ошибка: %v", err)
	}

	cfg.ResolveEncoder(func() string {
		encoderName, _ := system.GetBestH264Encoder()
		if encoderName != "libx264" {
			fmt.Printf("[*] Обнаружено аппаратное ускорение: %s\n", encoderName)
		}
		return encoderName
	})

	fmt.Println("--- [SPRITELAB] ---")
	fmt.Printf("[*] Лист: %s | %dx%d | id %s\n", info.Display.Name, info.Display.Width, info.Display.Height, info.ID)
	fmt.Printf("[*] Режим: %s | %g FPS | масштаб %.1f\n", cfg.Mode, cfg.FPS, cfg.PreviewScale)
	fmt.Println("-------------------")

	project := engine.NewProject(cfg, session, video.NewFFmpegEncoder())

	switch cfg.Mode {
	case "preview":
		err = runPreview(ctx, cfg, project, loop)
	case "frames":
		dir := outputPath(cfg, "frames", "")
		var paths []string
		paths, err = project.ExportFrames(ctx, dir)
		if err == nil {
			fmt.Printf("[+++] Успех! %d кадров в %s\n", len(paths), dir)
		}
	case "video":
		path := outputPath(cfg, "loop", ".mp4")
		err = project.ExportVideo(ctx, path)
		if err == nil {
			fmt.Printf("[+++] Успех! Результат: %s\n", path)
		}
	case "anchor":
		path := outputPath(cfg, "anchor", ".png")
		var encoded string
		encoded, err = project.ExportAnchor(path)
		if err == nil {
			fmt.Printf("[+++] Сетка сохранена: %s (base64: %d символов)\n", path, len(encoded))
		}
	case "layout":
		err = saveLayout(cfg, session)
	case "align":
		err = runAlign(ctx, cfg, session)
	case "refine":
		err = runRefine(cfg, session, *promptPtr)
	default:
		err = fmt.Errorf("неизвестный режим: %s", cfg.Mode)
	}
	if err != nil {
		log.Fatalf("[-] Ошибка: %v", err)
	}

	project.Report(time.Since(start))
}

// outputPath returns -output or a timestamped name in output/
func outputPath(cfg *config.Config, kind, ext string) string {
	if cfg.OutputPath != "" {
		return cfg.OutputPath
	}
	base := filepath.Base(cfg.InputPath)
	name := strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), " ", "_")
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("%s_%s_%s%s", name, kind, timestamp, ext))
}

// runPreview plays the animation in real time, rewriting the stage image on
// every frame change so an image viewer can follow along
func runPreview(ctx context.Context, cfg *config.Config, project *engine.Project, loop *scheduler.Loop) error {
	path := outputPath(cfg, "preview", ".png")
	session := project.Session

	if err := project.ExportStage(session.Current(), path); err != nil {
		return err
	}
	fmt.Printf("[*] Превью: %s (%.1fs, Ctrl+C для остановки)\n", path, cfg.Duration)

	err := session.Play(func(i int) {
		if err := project.ExportStage(i, path); err != nil {
			log.Printf("[!] Ошибка отрисовки кадра %d: %v", i, err)
			return
		}
		fmt.Printf("[>] Frame 0%d\n", i+1)
	})
	if err != nil {
		return err
	}
	defer session.Pause()

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Duration*float64(time.Second)))
	defer cancel()
	if err := loop.Run(runCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func saveLayout(cfg *config.Config, session *engine.Session) error {
	sheet, err := session.Sheet()
	if err != nil {
		return err
	}
	path := cfg.OutputPath
	if path == "" {
		path = layout.GenerateLayoutPath()
	}
	os.MkdirAll(filepath.Dir(path), 0755)

	f := &layout.File{Version: "1.0", Sheet: sheet.Display.Name, Frames: sheet.Frames}
	if err := layout.WriteLayout(f, path); err != nil {
		return err
	}
	qrPath := strings.TrimSuffix(path, filepath.Ext(path)) + "_qr.png"
	if err := layout.WriteQR(sheet.Frames, qrPath, cfg.QRSize); err != nil {
		log.Printf("[!] QR не создан: %v", err)
	}
	fmt.Printf("[+++] Раскладка сохранена: %s\n", path)
	return nil
}

func runAlign(ctx context.Context, cfg *config.Config, session *engine.Session) error {
	detector, err := analyzer.NewDetector(cfg.Detector)
	if err != nil {
		return err
	}
	fmt.Printf("[*] Поиск силуэтов (%s)...\n", cfg.Detector)
	seq, err := session.AutoAlign(ctx, detector, analyzer.DefaultAlignOptions())
	if err != nil {
		return err
	}
	for i, r := range seq {
		fmt.Printf("  Frame %d: x=%.2f y=%.2f w=%.2f h=%.2f\n", i+1, r.X, r.Y, r.W, r.H)
	}
	return saveLayout(cfg, session)
}

func runRefine(cfg *config.Config, session *engine.Session, prompt string) error {
	req, err := session.RefineRequest(prompt)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return err
	}
	path := outputPath(cfg, "refine", ".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	fmt.Printf("[+++] Запрос сохранен: %s\n", path)
	return nil
}

// runNormalize reads a payload from -input (or stdin for "-") and writes the
// canonical form to -output or stdout
func runNormalize(cfg *config.Config) error {
	var raw []byte
	var err error
	if cfg.InputPath == "" || cfg.InputPath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(cfg.InputPath)
	}
	if err != nil {
		return err
	}

	canonical := payload.Normalize(string(raw))
	if canonical == "" {
		log.Printf("[!] Пустой payload: изображение отсутствует")
	}
	if cfg.OutputPath == "" {
		fmt.Println(canonical)
		return nil
	}
	return os.WriteFile(cfg.OutputPath, []byte(canonical), 0644)
}
