package render

import (
	"fmt"
	"image"

	"github.com/fogleman/fauxgl"

	"github.com/Unpackyourdream-Paprika/sam3dserver/mesh"
)

const (
	// Vertical field of view, degrees.
	rasterFOV = 60
	// Dark neutral scene background.
	rasterBackground = 0.15
)

// rasterBackend renders with a pure-Go offscreen perspective rasterizer:
// Phong shading, a directional light co-located with the camera and a
// perspective camera at the computed pose.
type rasterBackend struct{}

func (b *rasterBackend) Name() string { return string(KindRaster) }

func (b *rasterBackend) Probe() error {
	ctx := fauxgl.NewContext(4, 4)
	ctx.ClearColorBufferWith(fauxgl.Color{R: rasterBackground, G: rasterBackground, B: rasterBackground, A: 1})

	tri := fauxgl.NewTriangleForPoints(fauxgl.V(-1, -1, 0), fauxgl.V(1, -1, 0), fauxgl.V(0, 1, 0))
	trial := fauxgl.NewTriangleMesh([]*fauxgl.Triangle{tri})

	pose := CameraPose(0, 0, 2)
	matrix := pose.Inverse().Perspective(rasterFOV, 1, 0.1, 10)
	ctx.Shader = fauxgl.NewPhongShader(matrix, Eye(pose).Normalize(), Eye(pose))
	ctx.DrawMesh(trial)
	return nil
}

func (b *rasterBackend) Render(req Request) (image.Image, error) {
	model, err := mesh.Load(req.MeshPath)
	if err != nil {
		return nil, err
	}

	triangles := make([]*fauxgl.Triangle, 0, model.FaceCount())
	for gi := range model.Geometries {
		geom := &model.Geometries[gi]
		for f := 0; f < geom.FaceCount(); f++ {
			i0, i1, i2 := faceIndices(geom, f)
			triangles = append(triangles, fauxgl.NewTriangleForPoints(
				vertexAt(geom, i0),
				vertexAt(geom, i1),
				vertexAt(geom, i2),
			))
		}
	}
	if len(triangles) == 0 {
		return nil, fmt.Errorf("mesh %s has no drawable geometry", req.MeshPath)
	}

	fmesh := fauxgl.NewTriangleMesh(triangles)
	fmesh.SmoothNormalsThreshold(fauxgl.Radians(30))

	pose := CameraPose(req.Pitch, req.Yaw, req.Distance)
	eye := Eye(pose)
	aspect := float64(req.Width) / float64(req.Height)
	matrix := pose.Inverse().Perspective(rasterFOV, aspect, 0.1, 100)

	ctx := fauxgl.NewContext(req.Width, req.Height)
	ctx.ClearColorBufferWith(fauxgl.Color{R: rasterBackground, G: rasterBackground, B: rasterBackground, A: 1})

	shader := fauxgl.NewPhongShader(matrix, eye.Normalize(), eye)
	shader.ObjectColor = fauxgl.Color{R: 0.27, G: 0.51, B: 0.71, A: 1}
	shader.AmbientColor = fauxgl.Color{R: 0.3, G: 0.3, B: 0.3, A: 1}
	ctx.Shader = shader
	ctx.DrawMesh(fmesh)

	return ctx.Image(), nil
}

func faceIndices(geom *mesh.Geometry, face int) (int, int, int) {
	if len(geom.Indices) > 0 {
		return int(geom.Indices[face*3]), int(geom.Indices[face*3+1]), int(geom.Indices[face*3+2])
	}
	return face * 3, face*3 + 1, face*3 + 2
}

func vertexAt(geom *mesh.Geometry, i int) fauxgl.Vector {
	p := geom.Positions[i]
	return fauxgl.V(float64(p[0]), float64(p[1]), float64(p[2]))
}
