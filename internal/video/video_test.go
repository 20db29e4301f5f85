package video

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"strings"
	"testing"
)

func TestBuildEncodeArgs(t *testing.T) {
	e := NewFFmpegEncoder()
	tests := []struct {
		encoder string
		want    string
	}{
		{"libx264", "-crf 23 -preset medium"},
		{"h264_nvenc", "-cq 23"},
		{"h264_videotoolbox", "-b:v 2300k"},
	}
	for _, tt := range tests {
		args := e.buildEncodeArgs("out.mp4", Params{Width: 300, Height: 200, Rate: 12, Encoder: tt.encoder, Quality: 23})
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, tt.want) {
			t.Errorf("%s: args %q missing %q", tt.encoder, joined, tt.want)
		}
		if !strings.Contains(joined, "-video_size 300x200 -framerate 12 -i -") {
			t.Errorf("%s: input spec wrong: %q", tt.encoder, joined)
		}
		if args[len(args)-1] != "out.mp4" {
			t.Errorf("%s: output not last: %q", tt.encoder, args[len(args)-1])
		}
	}
}

func TestBuildEncodeArgsFilter(t *testing.T) {
	args := NewFFmpegEncoder().buildEncodeArgs("o.mp4", Params{Width: 2, Height: 2, Rate: 7.5, Encoder: "libx264", Filter: "hflip"})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-vf hflip,pad=") {
		t.Errorf("filter not prepended: %q", joined)
	}
	if !strings.Contains(joined, "-r 7.5") {
		t.Errorf("fractional rate lost: %q", joined)
	}
}

func TestWriteRawRGBA(t *testing.T) {
	img := image.NewNRGBA(image.Rect(2, 2, 4, 3))
	img.SetNRGBA(2, 2, color.NRGBA{255, 0, 0, 255})

	var buf bytes.Buffer
	if err := writeRawRGBA(&buf, img); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 2*1*4 {
		t.Fatalf("wrote %d bytes, want 8", buf.Len())
	}
	if !bytes.Equal(buf.Bytes()[:4], []byte{255, 0, 0, 255}) {
		t.Errorf("first pixel = %v", buf.Bytes()[:4])
	}
}

func TestEncodeRejectsBadOrder(t *testing.T) {
	e := NewFFmpegEncoder()
	frames := []*image.RGBA{image.NewRGBA(image.Rect(0, 0, 2, 2))}

	if err := e.Encode(context.Background(), "x.mp4", Params{}, frames, []int{0, 1}); err == nil {
		t.Error("expected error for out-of-range order")
	}
	if err := e.Encode(context.Background(), "x.mp4", Params{}, nil, nil); err == nil {
		t.Error("expected error for empty input")
	}
}
