package system

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SheetExtensions are the file types accepted as composite sheets
var SheetExtensions = []string{".png", ".jpg", ".jpeg", ".pdf"}

// WorkerCount returns the number of logical CPUs, falling back to
// runtime.NumCPU when the host cannot be queried.
func WorkerCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// MemoryReport describes host memory in one line for -stats output
func MemoryReport() string {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Sprintf("memory: unavailable (%v)", err)
	}
	return fmt.Sprintf("memory: %.1f%% used, %d MiB available", vm.UsedPercent, vm.Available/(1<<20))
}

// FindLatestSheet returns the newest sheet file in dir
func FindLatestSheet(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !HasSheetExtension(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("в папке %s не найдено спрайт-листов", dir)
	}

	return latestFile, nil
}

// HasSheetExtension reports whether name looks like a sheet file
func HasSheetExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range SheetExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func GetBestH264Encoder() (string, string) {
	// Приоритеты:
	// 1. MacOS (VideoToolbox)
	// 2. NVIDIA (NVENC)
	// 3. Software (libx264)
	encoders := []struct {
		name string
		args string
	}{
		{"h264_videotoolbox", ""},
		{"h264_nvenc", ""},
	}

	cmd := exec.Command("ffmpeg", "-encoders")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "libx264", ""
	}

	for _, enc := range encoders {
		if strings.Contains(string(out), enc.name) {
			return enc.name, enc.args
		}
	}

	return "libx264", ""
}
