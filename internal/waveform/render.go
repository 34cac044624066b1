package waveform

import (
	"fmt"
	"strings"
)

// Default rendering dimensions. The output is viewBox-normalized, so these
// only set the coordinate space, not the display size.
const (
	DefaultRenderWidth  = 1000
	DefaultRenderHeight = 200
)

// amplitudeScale leaves headroom above and below the envelope so a full-scale
// sample does not touch the edge of the drawing.
const amplitudeScale = 0.8

// Render builds an SVG document containing one closed symmetric envelope
// path: the upper envelope traced left to right, then the mirrored lower
// envelope traced right to left, closed into a single silhouette on a
// transparent background. The drawing scales with its container through the
// viewBox.
func Render(samples []float32, width, height int) string {
	if width <= 0 {
		width = DefaultRenderWidth
	}
	if height <= 0 {
		height = DefaultRenderHeight
	}

	centerY := float64(height) / 2
	halfSpan := amplitudeScale * float64(height) / 2

	var path strings.Builder
	n := len(samples)
	if n == 0 {
		// No signal: a flat line across the center.
		path.WriteString(fmt.Sprintf("M 0.00 %.2f L %.2f %.2f", centerY, float64(width), centerY))
	} else {
		// Upper envelope, left to right.
		for i := 0; i < n; i++ {
			x := xAt(i, n, width)
			y := centerY - amplitudeOf(samples[i])*halfSpan
			if i == 0 {
				path.WriteString(fmt.Sprintf("M %.2f %.2f", x, y))
			} else {
				path.WriteString(fmt.Sprintf(" L %.2f %.2f", x, y))
			}
		}
		// Mirrored lower envelope, right to left.
		for i := n - 1; i >= 0; i-- {
			x := xAt(i, n, width)
			y := centerY + amplitudeOf(samples[i])*halfSpan
			path.WriteString(fmt.Sprintf(" L %.2f %.2f", x, y))
		}
	}
	path.WriteString(" Z")

	return fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" preserveAspectRatio="none">`+
			`<path d="%s" fill="currentColor" stroke="currentColor" stroke-width="1"/>`+
			`</svg>`,
		width, height, path.String(),
	)
}

func xAt(i, n, width int) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i) / float64(n-1) * float64(width)
}

func amplitudeOf(sample float32) float64 {
	amp := float64(sample)
	if amp < 0 {
		amp = -amp
	}
	if amp > 1 {
		amp = 1
	}
	return amp
}
