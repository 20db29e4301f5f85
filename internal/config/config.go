package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/spritelab/internal/layout"
	"github.com/ivlev/spritelab/internal/overlay"
)

// Editing ranges of the preview controls
const (
	MinFPS   = 1
	MaxFPS   = 60
	MinScale = 0.5
	MaxScale = 3.0

	BasePreviewHeight = 280
	StageRatio        = 1.4
)

type Config struct {
	InputPath  string `yaml:"input"`
	LayoutPath string `yaml:"layout"`
	OutputPath string `yaml:"output"`
	Mode       string `yaml:"mode"`

	FPS               float64 `yaml:"fps"`
	PreviewScale      float64 `yaml:"preview_scale"`
	BasePreviewHeight int     `yaml:"base_preview_height"`
	StageWidth        int     `yaml:"stage_width"`
	StageHeight       int     `yaml:"stage_height"`

	Overlays   overlay.Toggles `yaml:"overlays"`
	EditBounds layout.Bounds   `yaml:"edit_bounds"`

	Detector string `yaml:"detector"`
	DPI      int    `yaml:"dpi"`

	Workers      int     `yaml:"workers"`
	Duration     float64 `yaml:"duration"`
	VideoRate    float64 `yaml:"video_rate"`
	VideoEncoder string  `yaml:"video_encoder"`
	Quality      int     `yaml:"quality"`
	Renderer     string  `yaml:"renderer"` // software | ffmpeg

	AnchorWidth  int `yaml:"anchor_width"`
	AnchorHeight int `yaml:"anchor_height"`
	QRSize       int `yaml:"qr_size"`

	ShowStats    bool   `yaml:"-"`
	BuildVersion string `yaml:"-"`
}

// Default returns the editor's initial settings
func Default() *Config {
	return &Config{
		FPS:               8,
		PreviewScale:      1,
		BasePreviewHeight: BasePreviewHeight,
		StageWidth:        2 * BasePreviewHeight,
		StageHeight:       int(BasePreviewHeight * StageRatio),
		Overlays:          overlay.DefaultToggles(),
		EditBounds:        layout.DefaultBounds(),
		Detector:          "silhouette",
		DPI:               150,
		Duration:          4,
		VideoRate:         30,
		VideoEncoder:      AutoEncoder,
		Quality:           0,
		Renderer:          "software",
		AnchorWidth:       1024,
		AnchorHeight:      576,
		QRSize:            256,
	}
}

// Load overlays the YAML file at path on top of cfg. Missing keys keep
// their current values.
func Load(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Normalize clamps the preview controls into their editing ranges and
// fills zero values with defaults.
func (c *Config) Normalize() {
	c.FPS = ClampFPS(c.FPS)
	c.PreviewScale = ClampScale(c.PreviewScale)
	if c.BasePreviewHeight <= 0 {
		c.BasePreviewHeight = BasePreviewHeight
	}
	if c.StageHeight <= 0 {
		c.StageHeight = int(math.Round(float64(c.BasePreviewHeight) * StageRatio))
	}
	if c.StageWidth <= 0 {
		c.StageWidth = 2 * c.BasePreviewHeight
	}
	if c.VideoRate <= 0 {
		c.VideoRate = 30
	}
	if c.AnchorWidth <= 0 || c.AnchorHeight <= 0 {
		c.AnchorWidth, c.AnchorHeight = 1024, 576
	}
}

// AutoEncoder asks ResolveEncoder to pick the best available H.264 encoder
const AutoEncoder = "auto"

// ResolveEncoder fills an "auto" (or empty) VideoEncoder from probe and a
// zero Quality from the encoder's default. Values set by a config file or
// a flag are kept. A nil probe falls back to libx264.
func (c *Config) ResolveEncoder(probe func() string) {
	if c.VideoEncoder == "" || c.VideoEncoder == AutoEncoder {
		c.VideoEncoder = "libx264"
		if probe != nil {
			c.VideoEncoder = probe()
		}
	}
	if c.Quality <= 0 {
		c.Quality = DefaultQuality(c.VideoEncoder)
	}
}

// DefaultQuality is the quality setting used when none is configured:
// a bitrate step for VideoToolbox, CQ for NVENC and CRF for x264
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

// DisplayHeight is the on-stage frame height for the current zoom
func (c *Config) DisplayHeight() float64 {
	return float64(c.BasePreviewHeight) * c.PreviewScale
}

// ClampFPS limits fps to the 1-60 slider range
func ClampFPS(fps float64) float64 {
	return clamp(fps, MinFPS, MaxFPS)
}

// ClampScale limits the preview zoom to 0.5-3.0
func ClampScale(s float64) float64 {
	return clamp(s, MinScale, MaxScale)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
