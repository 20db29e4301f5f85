package compositor

import (
	"fmt"
	"math"
)

// Filter expresses c as an FFmpeg filter chain that crops the sheet to the
// frame window, scales it to the render size and mirrors it when needed.
// The window is clipped to the sheet since crop cannot read outside it.
func Filter(c Composition) string {
	x0, y0, x1, y1 := c.Window()
	x0, x1 = clamp01(x0), clamp01(x1)
	y0, y1 = clamp01(y0), clamp01(y1)

	w, h := c.Size()
	filter := fmt.Sprintf("crop=iw*%.6f:ih*%.6f:iw*%.6f:ih*%.6f,scale=%d:%d:flags=neighbor",
		x1-x0, y1-y0, x0, y0, w, h)
	if c.Mirrored {
		filter += ",hflip"
	}
	return filter
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
