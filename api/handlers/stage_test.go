package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Unpackyourdream-Paprika/sam3dserver/render"
	"github.com/Unpackyourdream-Paprika/sam3dserver/storage"
	"github.com/Unpackyourdream-Paprika/sam3dserver/testutil"
	"github.com/Unpackyourdream-Paprika/sam3dserver/threed"
	"github.com/Unpackyourdream-Paprika/sam3dserver/types"
)

// stubConverter writes a small GLB on success, or fails with err.
type stubConverter struct {
	t     *testing.T
	err   error
	calls int
	last  threed.ConvertInput
}

func (c *stubConverter) Convert(_ context.Context, in threed.ConvertInput) (*threed.ConvertResult, error) {
	c.calls++
	c.last = in
	if c.err != nil {
		return nil, c.err
	}
	testutil.WriteTriangleGLB(c.t, in.OutputPath)
	return &threed.ConvertResult{MeshPath: in.OutputPath, VertexCount: 3, FaceCount: 1}, nil
}

func (c *stubConverter) Profile() threed.JobProfile { return threed.Trellis }

const testBaseURL = "http://stage.test"

func newTestStage(t *testing.T, convErr error) (*StageHandler, *stubConverter, *storage.Layout) {
	t.Helper()

	layout := storage.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())

	conv := &stubConverter{t: t, err: convErr}
	renderer := render.NewService("placeholder", zap.NewNop())

	return NewStageHandler(conv, renderer, layout, testBaseURL, nil, zap.NewNop()), conv, layout
}

func postJSON(t *testing.T, handler http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw)))
	return w
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var resp struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.True(t, resp.Success)
	return resp.Data
}

func TestStageHandler_ConvertEndToEnd(t *testing.T) {
	h, conv, layout := newTestStage(t, nil)

	w := postJSON(t, h.HandleConvert, ConvertRequest{
		ImageBase64: base64.StdEncoding.EncodeToString([]byte("fake png bytes")),
		NodeID:      "n1",
		Prompt:      "chair",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeData[ConvertData](t, w)

	assert.True(t, strings.HasPrefix(data.ModelID, "model_n1_"), "got %q", data.ModelID)
	assert.Equal(t, testBaseURL+"/models/"+data.ModelID+".glb", data.ModelURL)
	assert.Equal(t, testBaseURL+"/renders/"+data.ModelID+"_preview.png", data.PreviewURL)
	assert.GreaterOrEqual(t, data.VerticesCount, 0)
	assert.GreaterOrEqual(t, data.FacesCount, 0)

	assert.Equal(t, "chair", conv.last.Prompt)
	assert.FileExists(t, layout.ModelPath(data.ModelID))
	assert.FileExists(t, layout.UploadPath(data.ModelID))
	assert.FileExists(t, layout.PreviewPath(data.ModelID))
}

func TestStageHandler_ConvertStripsDataURLPrefix(t *testing.T) {
	h, _, layout := newTestStage(t, nil)

	raw := []byte{0x89, 'P', 'N', 'G', 0x01, 0x02}
	w := postJSON(t, h.HandleConvert, ConvertRequest{
		ImageBase64: "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw),
		NodeID:      "n2",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeData[ConvertData](t, w)

	saved, err := os.ReadFile(layout.UploadPath(data.ModelID))
	require.NoError(t, err)
	assert.Equal(t, raw, saved)
}

func TestStageHandler_ConvertValidation(t *testing.T) {
	h, conv, _ := newTestStage(t, nil)

	tests := []struct {
		name string
		req  ConvertRequest
	}{
		{"missing image", ConvertRequest{NodeID: "n1"}},
		{"missing node id", ConvertRequest{ImageBase64: base64.StdEncoding.EncodeToString([]byte("x"))}},
		{"invalid base64", ConvertRequest{ImageBase64: "!!not-base64!!", NodeID: "n1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, h.HandleConvert, tt.req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Zero(t, conv.calls)
}

func TestStageHandler_ConvertSegmentationFailure(t *testing.T) {
	h, _, _ := newTestStage(t, types.NewError(types.ErrSegmentationFailed, "no object detected"))

	w := postJSON(t, h.HandleConvert, ConvertRequest{
		ImageBase64: base64.StdEncoding.EncodeToString([]byte("img")),
		NodeID:      "n1",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrSegmentationFailed), resp.Error.Code)
}

func TestStageHandler_RenderMissingModel(t *testing.T) {
	h, _, layout := newTestStage(t, nil)

	w := postJSON(t, h.HandleRender, RenderRequest{ModelID: "model_ghost_20260101_000000"})

	assert.Equal(t, http.StatusNotFound, w.Code)

	entries, err := os.ReadDir(layout.RendersDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "no render file may be written for a missing model")
}

func TestStageHandler_RenderSuccess(t *testing.T) {
	h, _, layout := newTestStage(t, nil)

	const modelID = "model_n1_20260101_000000"
	testutil.WriteTriangleGLB(t, layout.ModelPath(modelID))

	pitch, yaw, distance := 30.0, 45.0, 2.0
	w := postJSON(t, h.HandleRender, RenderRequest{
		ModelID:    modelID,
		Pitch:      &pitch,
		Yaw:        &yaw,
		Distance:   &distance,
		Resolution: &Resolution{Width: 64, Height: 48},
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeData[RenderData](t, w)

	require.True(t, strings.HasPrefix(data.ImageBase64, "data:image/png;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(data.ImageBase64, "data:image/png;base64,"))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
	assert.GreaterOrEqual(t, data.RenderTimeMS, int64(0))

	entries, err := os.ReadDir(layout.RendersDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), modelID+"_p30_y45_")
}

func TestStageHandler_RenderDefaults(t *testing.T) {
	h, _, layout := newTestStage(t, nil)

	const modelID = "model_n1_20260101_000001"
	testutil.WriteTriangleGLB(t, layout.ModelPath(modelID))

	w := postJSON(t, h.HandleRender, RenderRequest{ModelID: modelID})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeData[RenderData](t, w)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(data.ImageBase64, "data:image/png;base64,"))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 1024, img.Bounds().Dx())
	assert.Equal(t, 1024, img.Bounds().Dy())
}

func TestStageHandler_ServeModel(t *testing.T) {
	h, _, layout := newTestStage(t, nil)

	const modelID = "model_n1_20260101_000002"
	testutil.WriteTriangleGLB(t, layout.ModelPath(modelID))

	t.Run("existing model", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.HandleModel(w, httptest.NewRequest(http.MethodGet, "/models/"+modelID+".glb", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "model/gltf-binary", w.Header().Get("Content-Type"))
		assert.NotEmpty(t, w.Body.Bytes())
	})

	t.Run("missing model", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.HandleModel(w, httptest.NewRequest(http.MethodGet, "/models/nope.glb", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("non glb path", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.HandleModel(w, httptest.NewRequest(http.MethodGet, "/models/secret.txt", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
