package render

import (
	"fmt"
	"image"

	"go.uber.org/zap"
)

// Kind identifies a render backend. The process-wide selection happens once
// at startup and is fixed for the process lifetime.
type Kind string

const (
	// KindRaster is the high-quality offscreen perspective rasterizer.
	KindRaster Kind = "raster"
	// KindVector is the projected polygon-plot fallback.
	KindVector Kind = "vector"
	// KindPlaceholder is the always-available last resort.
	KindPlaceholder Kind = "placeholder"
)

// Request describes one render call. Renders are stateless and independent
// of each other; OutputPath, when set, receives the encoded PNG.
type Request struct {
	MeshPath   string
	OutputPath string
	Pitch      float64
	Yaw        float64
	Distance   float64
	Width      int
	Height     int
}

// Backend renders a mesh at a camera angle.
type Backend interface {
	Name() string
	// Probe reports whether the backend is usable in this environment.
	Probe() error
	Render(req Request) (image.Image, error)
}

// backendFor returns the backend implementation for a kind.
func backendFor(kind Kind) Backend {
	switch kind {
	case KindRaster:
		return &rasterBackend{}
	case KindVector:
		return &vectorBackend{}
	default:
		return &placeholderBackend{}
	}
}

// Detect probes for the best available backend in fixed priority order:
// raster first, vector second, placeholder last. A non-"auto" override
// skips probing entirely.
func Detect(override string, logger *zap.Logger) Kind {
	switch Kind(override) {
	case KindRaster, KindVector, KindPlaceholder:
		logger.Info("render backend forced by config", zap.String("backend", override))
		return Kind(override)
	}

	for _, kind := range []Kind{KindRaster, KindVector} {
		if err := safeProbe(backendFor(kind)); err != nil {
			logger.Warn("render backend unavailable",
				zap.String("backend", string(kind)),
				zap.Error(err),
			)
			continue
		}
		return kind
	}
	return KindPlaceholder
}

func safeProbe(b Backend) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panic: %v", r)
		}
	}()
	return b.Probe()
}

// fallbackBackend wraps a backend so that any failure, panics included, is
// retried once against the placeholder before the error surfaces.
type fallbackBackend struct {
	primary     Backend
	placeholder Backend
	logger      *zap.Logger
}

func withPlaceholderFallback(primary Backend, logger *zap.Logger) Backend {
	return &fallbackBackend{
		primary:     primary,
		placeholder: &placeholderBackend{},
		logger:      logger,
	}
}

func (f *fallbackBackend) Name() string { return f.primary.Name() }

func (f *fallbackBackend) Probe() error { return f.primary.Probe() }

func (f *fallbackBackend) Render(req Request) (image.Image, error) {
	img, err := safeRender(f.primary, req)
	if err == nil {
		return img, nil
	}

	f.logger.Warn("render backend failed, falling back to placeholder",
		zap.String("backend", f.primary.Name()),
		zap.String("mesh", req.MeshPath),
		zap.Error(err),
	)
	return safeRender(f.placeholder, req)
}

func safeRender(b Backend, req Request) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("%s backend panic: %v", b.Name(), r)
		}
	}()
	return b.Render(req)
}
