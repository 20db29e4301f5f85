package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"
	"path/filepath"

	"github.com/ivlev/spritelab/internal/analyzer"
	"github.com/ivlev/spritelab/internal/layout"
)

func main() {
	sheetPath := flag.String("sheet", filepath.Join(os.TempDir(), "test_sheet.png"), "Where to write the synthetic sheet")
	detectorName := flag.String("detector", "silhouette", "Detector variant: silhouette, edges")
	flag.Parse()

	layoutPath := layout.GenerateLayoutPath()

	fmt.Println("=== Smart Align Layout Generation ===")
	fmt.Printf("Output: %s\n\n", layoutPath)

	// Step 1: Create synthetic sheet
	fmt.Println("[1/3] Creating synthetic 4x2 sheet...")
	img := createTestSheet(1024, 512)

	f, err := os.Create(*sheetPath)
	if err != nil {
		log.Fatalf("Failed to create image file: %v", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		log.Fatalf("Failed to encode image: %v", err)
	}
	fmt.Printf("✓ Created test sheet: %s (1024x512)\n\n", *sheetPath)

	// Step 2: Detect one pose per cell
	fmt.Println("[2/3] Detecting poses...")
	detector, err := analyzer.NewDetector(*detectorName)
	if err != nil {
		log.Fatalf("Failed to create detector: %v", err)
	}

	seq, err := analyzer.Align(context.Background(), img, detector, analyzer.DefaultAlignOptions())
	if err != nil {
		log.Fatalf("Failed to align frames: %v", err)
	}
	for i, r := range seq {
		fmt.Printf("  Frame %d: x=%.2f y=%.2f w=%.2f h=%.2f\n", i+1, r.X, r.Y, r.W, r.H)
	}
	fmt.Println()

	// Step 3: Write layout
	fmt.Println("[3/3] Writing YAML layout...")
	os.MkdirAll(filepath.Dir(layoutPath), 0755)

	file := &layout.File{Version: "1.0", Sheet: filepath.Base(*sheetPath), Frames: seq}
	if err := layout.WriteLayout(file, layoutPath); err != nil {
		log.Fatalf("Failed to write layout: %v", err)
	}
	fmt.Printf("✓ Layout saved to: %s\n\n", layoutPath)

	fmt.Println("✅ Done!")
	fmt.Printf("📄 Preview: spritelab -input %s -layout %s -onion -hitbox\n", *sheetPath, layoutPath)
}

// createTestSheet draws a walking "figure" per cell on a transparent sheet:
// a head, a body and legs whose stride changes with the frame index
func createTestSheet(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	cw, ch := width/layout.Columns, height/layout.Rows
	body := color.NRGBA{R: 90, G: 110, B: 220, A: 255}
	skin := color.NRGBA{R: 240, G: 200, B: 160, A: 255}

	for i := 0; i < layout.FrameCount; i++ {
		row, col := layout.Cell(i)
		ox, oy := col*cw, row*ch
		cx := ox + cw/2
		ground := oy + ch*85/100
		stride := (i%4 - 2) * 8

		drawRect(img, cx-14, oy+ch*20/100, cx+14, oy+ch*20/100+28, skin)
		drawRect(img, cx-20, oy+ch*20/100+30, cx+20, ground-60, body)
		drawRect(img, cx-16+stride, ground-60, cx-4+stride, ground, body)
		drawRect(img, cx+4-stride, ground-60, cx+16-stride, ground, body)
	}
	return img
}

// drawRect draws a filled rectangle
func drawRect(img *image.NRGBA, x1, y1, x2, y2 int, c color.NRGBA) {
	b := img.Bounds()
	for y := y1; y < y2; y++ {
		for x := x1; x < x2; x++ {
			if (image.Point{X: x, Y: y}).In(b) {
				img.SetNRGBA(x, y, c)
			}
		}
	}
}
