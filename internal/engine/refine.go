package engine

import (
	"encoding/json"
	"fmt"
	"image"

	"github.com/ivlev/spritelab/internal/anchor"
	"github.com/ivlev/spritelab/internal/layout"
	"github.com/ivlev/spritelab/internal/payload"
)

// AnchorLabel introduces the reference grid to the generation service
const AnchorLabel = "Spatial positioning guide: keep each pose inside its cell of this 4x2 grid."

// Part is one element of a request to the image generation service: an
// inline PNG payload or a text instruction
type Part struct {
	Kind  string `json:"kind"` // "image" or "text"
	Label string `json:"label,omitempty"`
	Data  string `json:"data"`
}

// RefineRequest is everything the generation service needs to redraw the
// current sheet while honouring the existing frame geometry. The engine
// only builds it; sending it is up to the caller.
type RefineRequest struct {
	SheetID     string          `json:"sheet_id"`
	Anchor      string          `json:"anchor"`
	Sheet       string          `json:"sheet"`
	Frames      json.RawMessage `json:"frames"`
	Instruction string          `json:"instruction"`
}

// RefineRequest builds the refine payload for the current sheet
func (s *Session) RefineRequest(instruction string) (*RefineRequest, error) {
	sheet, err := s.Sheet()
	if err != nil {
		return nil, err
	}

	grid, err := anchor.Payload()
	if err != nil {
		return nil, fmt.Errorf("anchor grid: %w", err)
	}
	img, err := payload.EncodePNG(sheet.Image)
	if err != nil {
		return nil, fmt.Errorf("encode sheet: %w", err)
	}
	frames, err := layout.MarshalWire(sheet.Frames)
	if err != nil {
		return nil, err
	}

	return &RefineRequest{
		SheetID:     sheet.ID.String(),
		Anchor:      grid,
		Sheet:       img,
		Frames:      frames,
		Instruction: instruction,
	}, nil
}

// Parts orders the request the way the service expects it: the anchor
// grid ahead of everything else, then the sheet, then the instruction with
// the frame geometry.
func (r *RefineRequest) Parts() []Part {
	text := fmt.Sprintf("%s\nKeep these frame rectangles (percent of the sheet): %s", r.Instruction, r.Frames)
	return []Part{
		{Kind: "image", Label: AnchorLabel, Data: r.Anchor},
		{Kind: "image", Label: "Current sprite sheet", Data: r.Sheet},
		{Kind: "text", Data: text},
	}
}

// ApplyRefined installs the image returned by the service, keeping the
// current frames. An undecodable payload leaves the session untouched.
func (s *Session) ApplyRefined(raw string) (*SpriteSheet, error) {
	img, err := payload.DecodeImage(raw)
	if err != nil {
		return nil, err
	}
	return s.replaceImage(img)
}

func (s *Session) replaceImage(img image.Image) (*SpriteSheet, error) {
	current, err := s.Sheet()
	if err != nil {
		return nil, err
	}
	return s.ReplaceSheet(img, current.Frames, current.Display.Name)
}
