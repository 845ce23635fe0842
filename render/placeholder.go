package render

import (
	"fmt"
	"image"

	"github.com/fogleman/gg"
)

// placeholderBackend synthesizes a flat canvas with a circular glyph and a
// label reporting the requested angles. It is the last-resort backend and
// the recovery target when a real backend fails.
type placeholderBackend struct{}

func (b *placeholderBackend) Name() string { return string(KindPlaceholder) }

func (b *placeholderBackend) Probe() error { return nil }

func (b *placeholderBackend) Render(req Request) (image.Image, error) {
	dc := gg.NewContext(req.Width, req.Height)
	dc.SetRGB255(40, 40, 40)
	dc.Clear()

	cx := float64(req.Width) / 2
	cy := float64(req.Height) / 2
	radius := float64(minInt(req.Width, req.Height)) / 4

	dc.DrawCircle(cx, cy, radius)
	dc.SetRGB255(80, 120, 160)
	dc.FillPreserve()
	dc.SetRGB255(120, 160, 200)
	dc.SetLineWidth(3)
	dc.Stroke()

	dc.SetRGB255(255, 255, 255)
	dc.DrawString(fmt.Sprintf("Pitch: %.1f", req.Pitch), 20, 24)
	dc.DrawString(fmt.Sprintf("Yaw: %.1f", req.Yaw), 20, 40)
	dc.DrawString("(placeholder)", 20, 56)

	return dc.Image(), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
