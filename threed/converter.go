package threed

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/Unpackyourdream-Paprika/sam3dserver/mesh"
	"github.com/Unpackyourdream-Paprika/sam3dserver/types"
)

// Converter turns a local image into a local mesh file via a remote
// inference job, parameterized by a job profile. It tolerates exactly one
// recoverable failure class: a recognized segmentation failure triggers a
// single retry with the profile's relaxed parameters.
type Converter struct {
	cfg     Config
	profile JobProfile
	client  *falClient
	logger  *zap.Logger
}

// NewConverter creates a converter for the profile named in cfg.
func NewConverter(cfg Config, logger *zap.Logger) (*Converter, error) {
	cfg = cfg.withDefaults()

	profile, err := ProfileByID(cfg.Profile)
	if err != nil {
		return nil, err
	}

	logger = logger.With(
		zap.String("component", "threed"),
		zap.String("profile", profile.ID),
	)
	if cfg.APIKey == "" {
		logger.Warn("FAL key not set; conversions will fail until one is configured")
	}

	return &Converter{
		cfg:     cfg,
		profile: profile,
		client:  newFalClient(cfg, logger),
		logger:  logger,
	}, nil
}

// Profile returns the job profile the converter targets.
func (c *Converter) Profile() JobProfile { return c.profile }

// Convert uploads the image, drives the inference job to completion,
// downloads the resulting mesh to in.OutputPath and annotates the result
// with vertex/face counts. A statistics read failure degrades to zero
// counts and never fails the conversion.
func (c *Converter) Convert(ctx context.Context, in ConvertInput) (*ConvertResult, error) {
	if c.cfg.APIKey == "" {
		return nil, types.NewError(types.ErrConfiguration,
			"FAL key not configured; get one at https://fal.ai/dashboard/keys")
	}

	imageURL, err := c.client.UploadFile(ctx, in.ImagePath, "image/png")
	if err != nil {
		return nil, types.NewError(types.ErrTransport, "failed to upload image").WithCause(err)
	}

	payload, err := c.runJob(ctx, imageURL, in)
	if err != nil {
		return nil, err
	}

	meshURL := extractMeshURL(payload, c.profile.ResponseFields)
	if meshURL == "" {
		return nil, types.NewError(types.ErrResponseShape,
			"inference response carried no usable mesh reference")
	}

	size, err := c.client.DownloadTo(ctx, meshURL, in.OutputPath)
	if err != nil {
		return nil, types.NewError(types.ErrTransport, "failed to download mesh").WithCause(err)
	}
	c.logger.Info("mesh downloaded",
		zap.String("path", in.OutputPath),
		zap.Int64("bytes", size),
	)

	vertices, faces, err := mesh.Stats(in.OutputPath)
	if err != nil {
		c.logger.Warn("could not read mesh stats", zap.Error(err))
		vertices, faces = 0, 0
	}

	return &ConvertResult{
		MeshPath:    in.OutputPath,
		VertexCount: vertices,
		FaceCount:   faces,
	}, nil
}

// runJob submits the primary parameter set and, on a recognized
// segmentation failure, retries exactly once with the relaxed set. Any
// other failure class propagates immediately.
func (c *Converter) runJob(ctx context.Context, imageURL string, in ConvertInput) (map[string]any, error) {
	payload, err := c.submitAndAwait(ctx, c.profile.Arguments(imageURL, in.Prompt, in.Seed))
	if err == nil {
		return payload, nil
	}
	if !isSegmentationFailure(err) {
		return nil, wrapJobFailure(err)
	}
	if c.profile.RelaxedArguments == nil {
		return nil, types.NewError(types.ErrSegmentationFailed,
			"no subject could be localized in the image").WithCause(err)
	}

	c.logger.Info("segmentation failed, retrying with relaxed parameters")

	payload, err = c.submitAndAwait(ctx, c.profile.RelaxedArguments(imageURL, in.Seed))
	if err == nil {
		return payload, nil
	}
	if isSegmentationFailure(err) {
		return nil, types.NewError(types.ErrSegmentationFailed,
			"no subject could be localized in the image, even with relaxed detection; try a different image").WithCause(err)
	}
	return nil, wrapJobFailure(err)
}

func (c *Converter) submitAndAwait(ctx context.Context, args map[string]any) (map[string]any, error) {
	sub, err := c.client.Submit(ctx, c.profile.Endpoint, args)
	if err != nil {
		return nil, err
	}
	return c.client.Await(ctx, sub)
}

func wrapJobFailure(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTransport, "inference job timed out").WithCause(err)
	}
	return types.NewError(types.ErrTransport, "inference job failed").WithCause(err)
}

// isSegmentationFailure reports whether the job failed because no subject
// could be auto-segmented from the image.
func isSegmentationFailure(err error) bool {
	var je *jobError
	if !errors.As(err, &je) {
		return false
	}
	detail := strings.ToLower(je.Detail)
	for _, marker := range []string{
		"no object detected",
		"no object found",
		"segmentation failed",
		"could not segment",
		"no subject",
	} {
		if strings.Contains(detail, marker) {
			return true
		}
	}
	return false
}

// extractMeshURL resolves the mesh reference from a response payload using
// the profile's prioritized field order. Each field may be a direct URL
// string or a structured object carrying a url field.
func extractMeshURL(payload map[string]any, fields []string) string {
	for _, field := range fields {
		switch v := payload[field].(type) {
		case map[string]any:
			if u, ok := v["url"].(string); ok && u != "" {
				return u
			}
		case string:
			if strings.HasPrefix(v, "http") {
				return v
			}
		}
	}
	return ""
}
