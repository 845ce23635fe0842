package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Unpackyourdream-Paprika/sam3dserver/internal/metrics"
	"github.com/Unpackyourdream-Paprika/sam3dserver/render"
	"github.com/Unpackyourdream-Paprika/sam3dserver/storage"
	"github.com/Unpackyourdream-Paprika/sam3dserver/threed"
	"github.com/Unpackyourdream-Paprika/sam3dserver/types"
)

// Default camera used for previews and for render requests that omit
// camera parameters.
const (
	defaultPitch    = 12.0
	defaultYaw      = 32.0
	defaultDistance = 2.8

	previewSize       = 512
	defaultRenderSize = 1024
)

// Converter drives one 2D → 3D conversion job.
type Converter interface {
	Convert(ctx context.Context, in threed.ConvertInput) (*threed.ConvertResult, error)
	Profile() threed.JobProfile
}

// Renderer produces a camera-angle image of a mesh.
type Renderer interface {
	RenderAngle(ctx context.Context, req render.Request) (*render.Result, error)
	Kind() render.Kind
}

// StageHandler serves the 2D → 3D conversion and render endpoints.
type StageHandler struct {
	converter Converter
	renderer  Renderer
	layout    *storage.Layout
	baseURL   string
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewStageHandler creates the stage handler. The metrics collector may be
// nil when metrics are disabled.
func NewStageHandler(converter Converter, renderer Renderer, layout *storage.Layout, baseURL string, collector *metrics.Collector, logger *zap.Logger) *StageHandler {
	return &StageHandler{
		converter: converter,
		renderer:  renderer,
		layout:    layout,
		baseURL:   strings.TrimRight(baseURL, "/"),
		metrics:   collector,
		logger:    logger.With(zap.String("component", "stage_handler")),
	}
}

// ConvertRequest is the body of POST /api/stage/convert.
type ConvertRequest struct {
	ImageBase64 string `json:"image_base64"`
	NodeID      string `json:"node_id"`
	UserID      string `json:"user_id,omitempty"`
	Prompt      string `json:"prompt,omitempty"`
	Seed        int    `json:"seed,omitempty"`
}

// ConvertData is the payload of a successful conversion response.
type ConvertData struct {
	ModelID       string `json:"model_id"`
	ModelURL      string `json:"model_url"`
	PreviewURL    string `json:"preview_url"`
	VerticesCount int    `json:"vertices_count"`
	FacesCount    int    `json:"faces_count"`
}

// HandleConvert accepts a base64 image, drives the conversion job and
// renders a preview of the resulting mesh.
func (h *StageHandler) HandleConvert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	if req.ImageBase64 == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "image_base64 is required"), h.logger)
		return
	}
	if req.NodeID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "node_id is required"), h.logger)
		return
	}
	if req.Prompt == "" {
		req.Prompt = "object"
	}

	imageBytes, err := decodeImagePayload(req.ImageBase64)
	if err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "image_base64 is not valid base64").WithCause(err), h.logger)
		return
	}

	modelID := storage.NewModelID(req.NodeID, time.Now())
	h.logger.Info("converting image",
		zap.String("node_id", req.NodeID),
		zap.String("model_id", modelID),
		zap.String("prompt", req.Prompt),
	)

	uploadPath := h.layout.UploadPath(modelID)
	if err := os.WriteFile(uploadPath, imageBytes, 0o644); err != nil {
		WriteError(w, types.NewError(types.ErrInternal, "failed to save upload").WithCause(err), h.logger)
		return
	}

	modelPath := h.layout.ModelPath(modelID)
	start := time.Now()
	result, err := h.converter.Convert(r.Context(), threed.ConvertInput{
		ImagePath:  uploadPath,
		OutputPath: modelPath,
		Prompt:     req.Prompt,
		Seed:       req.Seed,
	})
	h.recordConversion(err, time.Since(start))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	// Preview failures degrade to a missing preview image, never fail the
	// conversion itself.
	if _, err := h.renderer.RenderAngle(r.Context(), render.Request{
		MeshPath:   result.MeshPath,
		OutputPath: h.layout.PreviewPath(modelID),
		Pitch:      defaultPitch,
		Yaw:        defaultYaw,
		Distance:   defaultDistance,
		Width:      previewSize,
		Height:     previewSize,
	}); err != nil {
		h.logger.Warn("preview render failed", zap.String("model_id", modelID), zap.Error(err))
	}

	WriteSuccess(w, ConvertData{
		ModelID:       modelID,
		ModelURL:      h.baseURL + "/models/" + modelID + ".glb",
		PreviewURL:    h.baseURL + "/renders/" + modelID + "_preview.png",
		VerticesCount: result.VertexCount,
		FacesCount:    result.FaceCount,
	})
}

// Resolution is the requested render size.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RenderRequest is the body of POST /api/stage/render. Omitted camera
// parameters fall back to the default preview camera.
type RenderRequest struct {
	ModelID    string      `json:"model_id"`
	Pitch      *float64    `json:"pitch,omitempty"`
	Yaw        *float64    `json:"yaw,omitempty"`
	Distance   *float64    `json:"distance,omitempty"`
	Resolution *Resolution `json:"resolution,omitempty"`
}

// RenderData is the payload of a successful render response.
type RenderData struct {
	ImageBase64  string `json:"image_base64"`
	RenderTimeMS int64  `json:"render_time_ms"`
}

// HandleRender renders a previously converted model at the requested
// camera angle and returns the image inline as a data URL.
func (h *StageHandler) HandleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if DecodeJSONBody(w, r, &req, h.logger) != nil {
		return
	}

	if req.ModelID == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "model_id is required"), h.logger)
		return
	}

	pitch := floatOrDefault(req.Pitch, defaultPitch)
	yaw := floatOrDefault(req.Yaw, defaultYaw)
	distance := floatOrDefault(req.Distance, defaultDistance)
	width, height := defaultRenderSize, defaultRenderSize
	if req.Resolution != nil {
		width, height = req.Resolution.Width, req.Resolution.Height
	}

	if !h.layout.ModelExists(req.ModelID) {
		WriteError(w, types.Errorf(types.ErrNotFound, "model not found: %s", req.ModelID), h.logger)
		return
	}

	h.logger.Info("rendering model",
		zap.String("model_id", req.ModelID),
		zap.Float64("pitch", pitch),
		zap.Float64("yaw", yaw),
	)

	result, err := h.renderer.RenderAngle(r.Context(), render.Request{
		MeshPath:   h.layout.ModelPath(req.ModelID),
		OutputPath: h.layout.RenderPath(req.ModelID, pitch, yaw, time.Now()),
		Pitch:      pitch,
		Yaw:        yaw,
		Distance:   distance,
		Width:      width,
		Height:     height,
	})
	h.recordRender(err, result)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	WriteSuccess(w, RenderData{
		ImageBase64:  "data:image/png;base64," + base64.StdEncoding.EncodeToString(result.ImageBytes),
		RenderTimeMS: result.Duration.Milliseconds(),
	})
}

// HandleModel serves a generated GLB file.
func (h *StageHandler) HandleModel(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/models/")
	modelID, ok := strings.CutSuffix(name, ".glb")
	if !ok || modelID == "" || strings.ContainsAny(modelID, "/\\") {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "invalid model path"), h.logger)
		return
	}
	if !h.layout.ModelExists(modelID) {
		WriteError(w, types.Errorf(types.ErrNotFound, "model not found: %s", modelID), h.logger)
		return
	}

	w.Header().Set("Content-Type", "model/gltf-binary")
	http.ServeFile(w, r, h.layout.ModelPath(modelID))
}

func (h *StageHandler) writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *types.Error
	if !errors.As(err, &apiErr) {
		apiErr = types.NewError(types.ErrInternal, "internal error").WithCause(err)
	}
	WriteError(w, apiErr, h.logger)
}

func (h *StageHandler) recordConversion(err error, duration time.Duration) {
	if h.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	h.metrics.RecordConversion(h.converter.Profile().ID, status, duration)
}

func (h *StageHandler) recordRender(err error, result *render.Result) {
	if h.metrics == nil {
		return
	}
	status, duration := "success", time.Duration(0)
	if err != nil {
		status = "error"
	} else {
		duration = result.Duration
	}
	h.metrics.RecordRender(string(h.renderer.Kind()), status, duration)
}

// decodeImagePayload decodes a base64 image, tolerating a data URL prefix
// such as "data:image/png;base64,".
func decodeImagePayload(payload string) ([]byte, error) {
	if idx := strings.Index(payload, ","); idx >= 0 {
		payload = payload[idx+1:]
	}
	return base64.StdEncoding.DecodeString(payload)
}

func floatOrDefault(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
