package analyzer

import "image"

// Block is a detected region of interest, in the image's own coordinates
type Block struct {
	Rect       image.Rectangle
	Type       string  // "silhouette", "edges"
	Confidence float64 // 0.0-1.0
}

// Detector finds sprite regions in an image or sub-image
type Detector interface {
	Detect(img image.Image) ([]Block, error)
}

// Union returns the smallest rectangle covering every block
func Union(blocks []Block) image.Rectangle {
	var r image.Rectangle
	for _, b := range blocks {
		r = r.Union(b.Rect)
	}
	return r
}
