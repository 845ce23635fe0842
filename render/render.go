package render

import (
	"bytes"
	"context"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Unpackyourdream-Paprika/sam3dserver/types"
)

// Service is the render pipeline: a process-wide backend selected once at
// startup, wrapped so every call degrades to the placeholder instead of
// surfacing backend failures.
type Service struct {
	kind    Kind
	backend Backend
	logger  *zap.Logger
}

// NewService probes for the best available backend (or honors a non-"auto"
// override) and returns a ready render service.
func NewService(backendOverride string, logger *zap.Logger) *Service {
	logger = logger.With(zap.String("component", "render"))

	kind := Detect(backendOverride, logger)
	backend := backendFor(kind)
	if kind != KindPlaceholder {
		backend = withPlaceholderFallback(backend, logger)
	}

	logger.Info("render service initialized", zap.String("backend", string(kind)))
	return &Service{kind: kind, backend: backend, logger: logger}
}

// Kind returns the backend selected at startup.
func (s *Service) Kind() Kind { return s.kind }

// Result is a successful render.
type Result struct {
	// PNG-encoded image
	ImageBytes []byte
	// Where the image was persisted, when requested
	OutputPath string
	// Wall-clock render duration
	Duration time.Duration
}

// RenderAngle renders the mesh at the requested camera angle, encodes the
// image as PNG and, when OutputPath is set, persists it there. An error is
// only returned when even the placeholder backend fails or the request is
// invalid.
func (s *Service) RenderAngle(ctx context.Context, req Request) (*Result, error) {
	if req.Width <= 0 || req.Height <= 0 {
		return nil, types.Errorf(types.ErrInvalidRequest, "invalid resolution %dx%d", req.Width, req.Height)
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewError(types.ErrRenderBackend, "render cancelled").WithCause(err)
	}

	start := time.Now()

	img, err := s.backend.Render(req)
	if err != nil {
		return nil, types.NewError(types.ErrRenderBackend, "all render backends failed").WithCause(err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, types.NewError(types.ErrRenderBackend, "failed to encode render").WithCause(err)
	}

	if req.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
			return nil, types.NewError(types.ErrRenderBackend, "failed to create render dir").WithCause(err)
		}
		if err := os.WriteFile(req.OutputPath, buf.Bytes(), 0o644); err != nil {
			return nil, types.NewError(types.ErrRenderBackend, "failed to persist render").WithCause(err)
		}
	}

	duration := time.Since(start)
	s.logger.Info("rendered mesh",
		zap.String("mesh", req.MeshPath),
		zap.Float64("pitch", req.Pitch),
		zap.Float64("yaw", req.Yaw),
		zap.Duration("duration", duration),
	)

	return &Result{ImageBytes: buf.Bytes(), OutputPath: req.OutputPath, Duration: duration}, nil
}
