// Package mesh reads GLB mesh containers, flattening every sub-geometry
// into drawable triangle lists for the render backends and exposing
// vertex/face statistics for conversion results.
package mesh

import (
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// Geometry is one drawable sub-mesh: a triangle list with optional
// per-vertex colors.
type Geometry struct {
	Positions [][3]float32
	Indices   []uint32
	Colors    [][4]uint8
}

// FaceCount returns the number of triangles in the geometry.
func (g *Geometry) FaceCount() int {
	if len(g.Indices) > 0 {
		return len(g.Indices) / 3
	}
	return len(g.Positions) / 3
}

// Model is a flattened mesh container.
type Model struct {
	Geometries []Geometry
}

// VertexCount returns the total vertex count across all sub-geometries.
func (m *Model) VertexCount() int {
	total := 0
	for i := range m.Geometries {
		total += len(m.Geometries[i].Positions)
	}
	return total
}

// FaceCount returns the total face count across all sub-geometries.
func (m *Model) FaceCount() int {
	total := 0
	for i := range m.Geometries {
		total += m.Geometries[i].FaceCount()
	}
	return total
}

// Bounds returns the combined axis-aligned bounding box of all vertices.
// ok is false when the model has no vertices.
func (m *Model) Bounds() (min, max [3]float64, ok bool) {
	for i := range m.Geometries {
		for _, p := range m.Geometries[i].Positions {
			if !ok {
				for a := 0; a < 3; a++ {
					min[a] = float64(p[a])
					max[a] = float64(p[a])
				}
				ok = true
				continue
			}
			for a := 0; a < 3; a++ {
				v := float64(p[a])
				if v < min[a] {
					min[a] = v
				}
				if v > max[a] {
					max[a] = v
				}
			}
		}
	}
	return min, max, ok
}

// Load reads a GLB file and flattens every mesh primitive that carries
// position data into a Geometry. Primitives without positions are skipped.
func Load(path string) (*Model, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mesh container: %w", err)
	}

	model := &Model{}
	for _, gltfMesh := range doc.Meshes {
		for _, prim := range gltfMesh.Primitives {
			posIdx, ok := prim.Attributes[gltf.POSITION]
			if !ok {
				continue
			}

			positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
			if err != nil {
				return nil, fmt.Errorf("failed to read positions: %w", err)
			}

			geom := Geometry{Positions: positions}

			if prim.Indices != nil {
				indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
				if err != nil {
					return nil, fmt.Errorf("failed to read indices: %w", err)
				}
				geom.Indices = indices
			}

			if colorIdx, ok := prim.Attributes[gltf.COLOR_0]; ok {
				// Vertex colors are optional; a malformed accessor only
				// loses the colors, not the geometry.
				if colors, err := modeler.ReadColor(doc, doc.Accessors[colorIdx], nil); err == nil {
					geom.Colors = colors
				}
			}

			model.Geometries = append(model.Geometries, geom)
		}
	}

	return model, nil
}

// Stats reads total vertex and face counts from a GLB file using accessor
// counts only, without decoding buffer data. A container with no drawable
// geometry yields (0, 0).
func Stats(path string) (vertices, faces int, err error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open mesh container: %w", err)
	}

	for _, gltfMesh := range doc.Meshes {
		for _, prim := range gltfMesh.Primitives {
			posIdx, ok := prim.Attributes[gltf.POSITION]
			if !ok || posIdx >= len(doc.Accessors) {
				continue
			}
			count := doc.Accessors[posIdx].Count
			vertices += count

			if prim.Indices != nil && *prim.Indices < len(doc.Accessors) {
				faces += doc.Accessors[*prim.Indices].Count / 3
			} else {
				faces += count / 3
			}
		}
	}

	return vertices, faces, nil
}
