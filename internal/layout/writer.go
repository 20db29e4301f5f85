package layout

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skip2/go-qrcode"
	"gopkg.in/yaml.v3"
)

// File is the on-disk layout document
type File struct {
	Version string   `yaml:"version"`
	Sheet   string   `yaml:"sheet,omitempty"` // Source sheet the rects were tuned against
	Frames  Sequence `yaml:"frames"`
}

// MarshalWire encodes the sequence as the JSON array sent to external
// collaborators: [{"x":..,"y":..,"w":..,"h":..,"flipped":..}, ...]
func MarshalWire(seq Sequence) ([]byte, error) {
	if seq == nil {
		seq = Sequence{}
	}
	return json.Marshal(seq)
}

// UnmarshalWire decodes and validates a wire array
func UnmarshalWire(data []byte, frameCount int) (Sequence, error) {
	var seq Sequence
	if err := json.Unmarshal(data, &seq); err != nil {
		return nil, fmt.Errorf("decode frame rects: %w", err)
	}
	if err := seq.Validate(frameCount); err != nil {
		return nil, err
	}
	return seq, nil
}

// WriteLayout writes a layout to path. A .json extension produces the bare
// wire array, anything else YAML.
func WriteLayout(f *File, path string) error {
	var data []byte
	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = MarshalWire(f.Frames)
	} else {
		data, err = yaml.Marshal(f)
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadLayout reads a layout written by WriteLayout and validates it
func ReadLayout(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		seq, err := UnmarshalWire(data, FrameCount)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return &File{Version: "1.0", Frames: seq}, nil
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if err := f.Frames.Validate(FrameCount); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &f, nil
}

// WriteQR renders the wire JSON of seq as a QR code PNG of size x size pixels
func WriteQR(seq Sequence, path string, size int) error {
	data, err := MarshalWire(seq)
	if err != nil {
		return err
	}
	return qrcode.WriteFile(string(data), qrcode.Medium, size, path)
}
