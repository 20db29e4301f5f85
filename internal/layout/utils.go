package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LayoutsDir is where timestamped layouts are kept
var LayoutsDir = filepath.Join("output", "layouts")

// GenerateLayoutPath creates a timestamped layout filename
func GenerateLayoutPath() string {
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(LayoutsDir, fmt.Sprintf("layout_%s.yaml", timestamp))
}

// FindLatestLayout finds the most recent layout file in dir
func FindLatestLayout(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read layouts directory: %w", err)
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var layouts []candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		layouts = append(layouts, candidate{filepath.Join(dir, entry.Name()), info.ModTime()})
	}

	if len(layouts) == 0 {
		return "", fmt.Errorf("no layout files found in %s", dir)
	}

	// Newest first
	sort.Slice(layouts, func(i, j int) bool {
		return layouts[i].mod.After(layouts[j].mod)
	})

	return layouts[0].path, nil
}
