package render

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/fogleman/fauxgl"
	"github.com/fogleman/gg"

	"github.com/Unpackyourdream-Paprika/sam3dserver/mesh"
)

// boundsMargin is the fixed margin around the combined bounding box.
const boundsMargin = 1.2

// vectorBackend renders a painter-sorted filled polygon plot of all faces,
// auto-scaled to the combined bounding box, oriented by the same camera pose
// the raster backend uses. Per-vertex colors are honored when present.
type vectorBackend struct{}

func (b *vectorBackend) Name() string { return string(KindVector) }

func (b *vectorBackend) Probe() error {
	dc := gg.NewContext(4, 4)
	dc.SetRGB(rasterBackground, rasterBackground, rasterBackground)
	dc.Clear()
	if dc.Image() == nil {
		return fmt.Errorf("vector canvas unavailable")
	}
	return nil
}

type projectedFace struct {
	pts     [3][2]float64
	depth   float64
	r, g, b float64
}

func (b *vectorBackend) Render(req Request) (image.Image, error) {
	model, err := mesh.Load(req.MeshPath)
	if err != nil {
		return nil, err
	}

	min, max, ok := model.Bounds()
	if !ok {
		return nil, fmt.Errorf("mesh %s has no drawable geometry", req.MeshPath)
	}

	var mid [3]float64
	maxRange := 0.0
	for a := 0; a < 3; a++ {
		mid[a] = (min[a] + max[a]) / 2
		maxRange = math.Max(maxRange, (max[a]-min[a])/2)
	}
	maxRange *= boundsMargin
	if maxRange == 0 {
		maxRange = 1
	}

	view := CameraPose(req.Pitch, req.Yaw, req.Distance).Inverse()
	cx := float64(req.Width) / 2
	cy := float64(req.Height) / 2
	scale := math.Min(float64(req.Width), float64(req.Height)) / 2

	faces := make([]projectedFace, 0, model.FaceCount())
	for gi := range model.Geometries {
		geom := &model.Geometries[gi]
		for f := 0; f < geom.FaceCount(); f++ {
			i0, i1, i2 := faceIndices(geom, f)

			var pf projectedFace
			pf.r, pf.g, pf.b = 70/255.0, 130/255.0, 180/255.0
			if len(geom.Colors) > i0 {
				c := geom.Colors[i0]
				pf.r, pf.g, pf.b = float64(c[0])/255, float64(c[1])/255, float64(c[2])/255
			}

			for vi, idx := range []int{i0, i1, i2} {
				p := geom.Positions[idx]
				normalized := fauxgl.V(
					(float64(p[0])-mid[0])/maxRange,
					(float64(p[1])-mid[1])/maxRange,
					(float64(p[2])-mid[2])/maxRange,
				)

				cam := view.MulPosition(normalized)
				pf.pts[vi] = [2]float64{cx + cam.X*scale, cy - cam.Y*scale}
				pf.depth += cam.Z / 3
			}
			faces = append(faces, pf)
		}
	}

	// Painter's algorithm: the camera looks down -Z, so smaller Z is
	// farther away and must be drawn first.
	sort.Slice(faces, func(i, j int) bool { return faces[i].depth < faces[j].depth })

	dc := gg.NewContext(req.Width, req.Height)
	dc.SetRGB(rasterBackground, rasterBackground, rasterBackground)
	dc.Clear()

	for i := range faces {
		pf := &faces[i]
		dc.MoveTo(pf.pts[0][0], pf.pts[0][1])
		dc.LineTo(pf.pts[1][0], pf.pts[1][1])
		dc.LineTo(pf.pts[2][0], pf.pts[2][1])
		dc.ClosePath()

		dc.SetRGBA(pf.r, pf.g, pf.b, 0.9)
		dc.FillPreserve()
		dc.SetRGBA(0.2, 0.2, 0.2, 0.1)
		dc.SetLineWidth(0.5)
		dc.Stroke()
	}

	return dc.Image(), nil
}
