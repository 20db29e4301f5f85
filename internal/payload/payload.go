// Package payload canonicalizes base64 image payloads at the boundary with
// the external generation service.
package payload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"strings"
)

// Marker separates a transport prefix (e.g. a data URL header) from the data
const Marker = "base64,"

// DataURLPrefix is prepended to outbound PNG payloads
const DataURLPrefix = "data:image/png;" + Marker

// ErrDecodeFailure means the payload does not hold a decodable image.
// Callers treat it as "no image available".
var ErrDecodeFailure = errors.New("decode failure")

// Normalize strips any transport prefix, drops characters outside the base64
// alphabet, maps the URL-safe alphabet onto the standard one and restores
// padding. Empty input yields "". Normalize is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	if _, rest, found := strings.Cut(s, Marker); found {
		s = rest
	}

	var b strings.Builder
	b.Grow(len(s) + 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
			b.WriteByte(c)
		case c == '-':
			b.WriteByte('+')
		case c == '_':
			b.WriteByte('/')
		}
	}

	if pad := (4 - b.Len()%4) % 4; pad > 0 {
		b.WriteString(strings.Repeat("=", pad))
	}
	return b.String()
}

// Decode normalizes s and returns the raw bytes
func Decode(s string) ([]byte, error) {
	canonical := Normalize(s)
	if canonical == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecodeFailure)
	}
	data, err := base64.StdEncoding.DecodeString(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return data, nil
}

// DecodeImage decodes a PNG or JPEG image from a payload
func DecodeImage(s string) (image.Image, error) {
	data, err := Decode(s)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return img, nil
}

// Encode returns the canonical payload for raw bytes
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// EncodePNG encodes img as PNG and returns the canonical payload
func EncodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return Encode(buf.Bytes()), nil
}

// DataURL wraps a payload into a PNG data URL, normalizing it first
func DataURL(s string) string {
	return DataURLPrefix + Normalize(s)
}
