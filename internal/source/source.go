package source

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// DefaultDPI is used when rasterizing vector sheets
const DefaultDPI = 150

// Source yields composite sprite sheets. Image files and directories hold one
// sheet per file; PDFs one per page.
type Source interface {
	SheetCount() int
	Dimensions(index int) (width, height float64, err error)
	Sheet(index int) (image.Image, error)
	Close() error
}

// Open picks the source implementation from the path
func Open(path string, dpi int) (Source, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return NewFitzPDFSource(path, dpi)
	}
	return NewImageSource(path)
}

// Load returns the first sheet of path
func Load(path string, dpi int) (image.Image, error) {
	src, err := Open(path, dpi)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	if src.SheetCount() == 0 {
		return nil, fmt.Errorf("%s: no sheets", path)
	}
	return src.Sheet(0)
}

type FitzPDFSource struct {
	doc  *fitz.Document
	path string
	dpi  int
}

func NewFitzPDFSource(path string, dpi int) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &FitzPDFSource{doc: doc, path: path, dpi: dpi}, nil
}

func (f *FitzPDFSource) SheetCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) Dimensions(index int) (float64, float64, error) {
	rect, err := f.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// Sheet rasterizes page index. A separate document handle is opened per
// call because fitz documents are not safe for concurrent rendering.
func (f *FitzPDFSource) Sheet(index int) (image.Image, error) {
	doc, err := fitz.New(f.path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.ImageDPI(index, float64(f.dpi))
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
