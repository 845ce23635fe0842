// Package testutil provides shared test helpers and fixtures.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/stretchr/testify/require"
)

// TestContext returns a context with a 30 second timeout, cancelled on test
// cleanup.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout returns a context with a custom timeout.
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext returns an already-cancelled context.
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// WriteTriangleGLB writes a GLB file containing a single colored triangle.
func WriteTriangleGLB(t *testing.T, path string) {
	t.Helper()

	doc := gltf.NewDocument()
	positions := modeler.WritePosition(doc, [][3]float32{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
	})
	indices := modeler.WriteIndices(doc, []uint32{0, 1, 2})
	colors := modeler.WriteColor(doc, [][4]uint8{
		{200, 60, 60, 255},
		{60, 200, 60, 255},
		{60, 60, 200, 255},
	})

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Primitives: []*gltf.Primitive{{
			Indices: gltf.Index(indices),
			Attributes: map[string]int{
				gltf.POSITION: positions,
				gltf.COLOR_0:  colors,
			},
		}},
	})
	doc.Nodes = append(doc.Nodes, &gltf.Node{Mesh: gltf.Index(0)})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	require.NoError(t, gltf.SaveBinary(doc, path))
}

// WriteTwoGeometryGLB writes a GLB file containing two primitives: an
// indexed triangle and an unindexed triangle.
func WriteTwoGeometryGLB(t *testing.T, path string) {
	t.Helper()

	doc := gltf.NewDocument()
	first := modeler.WritePosition(doc, [][3]float32{
		{0, 0, 0},
		{1, 0, 0},
		{0, 1, 0},
	})
	firstIdx := modeler.WriteIndices(doc, []uint32{0, 1, 2})
	second := modeler.WritePosition(doc, [][3]float32{
		{0, 0, 1},
		{1, 0, 1},
		{0, 1, 1},
	})

	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Primitives: []*gltf.Primitive{
			{
				Indices:    gltf.Index(firstIdx),
				Attributes: map[string]int{gltf.POSITION: first},
			},
			{
				Attributes: map[string]int{gltf.POSITION: second},
			},
		},
	})
	doc.Nodes = append(doc.Nodes, &gltf.Node{Mesh: gltf.Index(0)})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)

	require.NoError(t, gltf.SaveBinary(doc, path))
}

// WriteEmptyGLB writes a GLB file whose document contains no meshes.
func WriteEmptyGLB(t *testing.T, path string) {
	t.Helper()

	doc := gltf.NewDocument()
	require.NoError(t, gltf.SaveBinary(doc, path))
}
