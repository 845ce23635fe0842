package mesh_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unpackyourdream-Paprika/sam3dserver/mesh"
	"github.com/Unpackyourdream-Paprika/sam3dserver/testutil"
)

func TestLoad_Triangle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tri.glb")
	testutil.WriteTriangleGLB(t, path)

	model, err := mesh.Load(path)
	require.NoError(t, err)

	require.Len(t, model.Geometries, 1)
	geom := model.Geometries[0]
	assert.Len(t, geom.Positions, 3)
	assert.Equal(t, []uint32{0, 1, 2}, geom.Indices)
	assert.Len(t, geom.Colors, 3)
	assert.Equal(t, 1, geom.FaceCount())
}

func TestLoad_FlattensAllPrimitives(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.glb")
	testutil.WriteTwoGeometryGLB(t, path)

	model, err := mesh.Load(path)
	require.NoError(t, err)

	assert.Len(t, model.Geometries, 2)
	assert.Equal(t, 6, model.VertexCount())
	assert.Equal(t, 2, model.FaceCount())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := mesh.Load(filepath.Join(t.TempDir(), "nope.glb"))
	assert.Error(t, err)
}

func TestModel_Bounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "two.glb")
	testutil.WriteTwoGeometryGLB(t, path)

	model, err := mesh.Load(path)
	require.NoError(t, err)

	min, max, ok := model.Bounds()
	require.True(t, ok)
	assert.Equal(t, [3]float64{0, 0, 0}, min)
	assert.Equal(t, [3]float64{1, 1, 1}, max)
}

func TestModel_Bounds_Empty(t *testing.T) {
	model := &mesh.Model{}
	_, _, ok := model.Bounds()
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	dir := t.TempDir()

	t.Run("triangle", func(t *testing.T) {
		path := filepath.Join(dir, "tri.glb")
		testutil.WriteTriangleGLB(t, path)

		verts, faces, err := mesh.Stats(path)
		require.NoError(t, err)
		assert.Equal(t, 3, verts)
		assert.Equal(t, 1, faces)
	})

	t.Run("two geometries", func(t *testing.T) {
		path := filepath.Join(dir, "two.glb")
		testutil.WriteTwoGeometryGLB(t, path)

		verts, faces, err := mesh.Stats(path)
		require.NoError(t, err)
		assert.Equal(t, 6, verts)
		assert.Equal(t, 2, faces)
	})

	t.Run("no drawable geometry", func(t *testing.T) {
		path := filepath.Join(dir, "empty.glb")
		testutil.WriteEmptyGLB(t, path)

		verts, faces, err := mesh.Stats(path)
		require.NoError(t, err)
		assert.Equal(t, 0, verts)
		assert.Equal(t, 0, faces)
	})

	t.Run("corrupt container", func(t *testing.T) {
		path := filepath.Join(dir, "corrupt.glb")
		require.NoError(t, os.WriteFile(path, []byte("not a glb"), 0o644))

		_, _, err := mesh.Stats(path)
		assert.Error(t, err)
	})
}
