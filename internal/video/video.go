package video

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strconv"
)

// Params describe one encode job
type Params struct {
	Width, Height int     // Size of every input frame
	Rate          float64 // Output frames per second
	Encoder       string  // ffmpeg video codec, e.g. libx264
	Quality       int
	Filter        string // Optional -vf chain
}

type VideoEncoder interface {
	// Encode writes frames[order[0]], frames[order[1]], ... as one video
	Encode(ctx context.Context, path string, p Params, frames []*image.RGBA, order []int) error
	// Crop applies an ffmpeg filter chain to a single image and saves the result
	Crop(ctx context.Context, img image.Image, filter, path string) error
}

type FFmpegEncoder struct {
	Binary string
}

func NewFFmpegEncoder() *FFmpegEncoder {
	return &FFmpegEncoder{Binary: "ffmpeg"}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, path string, p Params, frames []*image.RGBA, order []int) error {
	if len(frames) == 0 || len(order) == 0 {
		return fmt.Errorf("nothing to encode")
	}
	for _, i := range order {
		if i < 0 || i >= len(frames) {
			return fmt.Errorf("frame index %d out of range (%d frames)", i, len(frames))
		}
	}

	args := e.buildEncodeArgs(path, p)
	return e.run(ctx, args, func(w io.Writer) error {
		for _, i := range order {
			if err := writeRawRGBA(w, frames[i]); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *FFmpegEncoder) Crop(ctx context.Context, img image.Image, filter, path string) error {
	b := img.Bounds()
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
		"-i", "-",
		"-vf", filter,
		"-frames:v", "1",
		path,
	}
	return e.run(ctx, args, func(w io.Writer) error {
		return writeRawRGBA(w, img)
	})
}

func (e *FFmpegEncoder) run(ctx context.Context, args []string, feed func(io.Writer) error) error {
	cmd := exec.CommandContext(ctx, e.binary(), args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start error: %w", err)
	}

	// Запись raw RGBA данных
	if err := feed(stdin); err != nil {
		stdin.Close()
		cmd.Wait()
		return fmt.Errorf("write raw error: %w", err)
	}
	stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w", err)
	}
	return nil
}

func (e *FFmpegEncoder) binary() string {
	if e.Binary == "" {
		return "ffmpeg"
	}
	return e.Binary
}

func (e *FFmpegEncoder) buildEncodeArgs(path string, p Params) []string {
	rate := strconv.FormatFloat(p.Rate, 'f', -1, 64)
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", rate,
		"-i", "-",
	}

	// yuv420p требует чётных размеров
	vf := "pad=ceil(iw/2)*2:ceil(ih/2)*2"
	if p.Filter != "" {
		vf = p.Filter + "," + vf
	}
	args = append(args,
		"-vf", vf,
		"-r", rate,
		"-pix_fmt", "yuv420p",
		"-c:v", p.Encoder,
	)

	// Качество в зависимости от энкодера
	switch p.Encoder {
	case "h264_videotoolbox":
		bitrate := p.Quality * 100
		args = append(args, "-b:v", fmt.Sprintf("%dk", bitrate))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", p.Quality))
	default: // libx264
		args = append(args, "-crf", fmt.Sprintf("%d", p.Quality), "-preset", "medium")
	}

	return append(args, path)
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}
