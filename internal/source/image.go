package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ivlev/spritelab/internal/payload"
)

type ImageSource struct {
	paths []string
}

func NewImageSource(path string) (*ImageSource, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var paths []string
	if fi.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(entry.Name())) {
			case ".jpg", ".jpeg", ".png":
				paths = append(paths, filepath.Join(path, entry.Name()))
			}
		}
		sort.Strings(paths)
	} else {
		paths = []string{path}
	}

	return &ImageSource{paths: paths}, nil
}

func (s *ImageSource) SheetCount() int {
	return len(s.paths)
}

func (s *ImageSource) Dimensions(index int) (float64, float64, error) {
	if err := s.check(index); err != nil {
		return 0, 0, err
	}
	f, err := os.Open(s.paths[index])
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return float64(cfg.Width), float64(cfg.Height), nil
}

func (s *ImageSource) Sheet(index int) (image.Image, error) {
	if err := s.check(index); err != nil {
		return nil, err
	}
	f, err := os.Open(s.paths[index])
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.paths[index], err)
	}
	return img, nil
}

func (s *ImageSource) check(index int) error {
	if index < 0 || index >= len(s.paths) {
		return fmt.Errorf("sheet index %d out of range (%d sheets)", index, len(s.paths))
	}
	return nil
}

func (s *ImageSource) Close() error {
	return nil
}

// PayloadSource holds a single sheet received as a base64 payload or data
// URL, e.g. a response of the image generation service.
type PayloadSource struct {
	img image.Image
}

// NewPayloadSource decodes raw. The payload is normalized first, so any
// transport prefix or URL-safe alphabet is accepted.
func NewPayloadSource(raw string) (*PayloadSource, error) {
	img, err := payload.DecodeImage(raw)
	if err != nil {
		return nil, err
	}
	return &PayloadSource{img: img}, nil
}

func (p *PayloadSource) SheetCount() int {
	return 1
}

func (p *PayloadSource) Dimensions(index int) (float64, float64, error) {
	if index != 0 {
		return 0, 0, fmt.Errorf("sheet index %d out of range (1 sheet)", index)
	}
	b := p.img.Bounds()
	return float64(b.Dx()), float64(b.Dy()), nil
}

func (p *PayloadSource) Sheet(index int) (image.Image, error) {
	if index != 0 {
		return nil, fmt.Errorf("sheet index %d out of range (1 sheet)", index)
	}
	return p.img, nil
}

func (p *PayloadSource) Close() error {
	return nil
}
