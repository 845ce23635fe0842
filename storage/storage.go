// Package storage manages the on-disk artifact layout: uploaded source
// images, generated mesh files and rendered previews, all under one
// explicitly configured root so tests can point it at a temp directory.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	uploadsDir = "uploads"
	modelsDir  = "models"
	rendersDir = "renders"
)

// Layout describes the storage directory tree under a single root.
type Layout struct {
	root string
}

// NewLayout creates a layout rooted at the given directory.
func NewLayout(root string) *Layout {
	return &Layout{root: root}
}

// Root returns the storage root directory.
func (l *Layout) Root() string { return l.root }

// UploadsDir returns the directory holding uploaded source images.
func (l *Layout) UploadsDir() string { return filepath.Join(l.root, uploadsDir) }

// ModelsDir returns the directory holding generated mesh files.
func (l *Layout) ModelsDir() string { return filepath.Join(l.root, modelsDir) }

// RendersDir returns the directory holding rendered preview images.
func (l *Layout) RendersDir() string { return filepath.Join(l.root, rendersDir) }

// EnsureDirs creates the storage directory tree.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.UploadsDir(), l.ModelsDir(), l.RendersDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create storage dir %s: %w", dir, err)
		}
	}
	return nil
}

// NewModelID derives a model identifier from a node identifier and a
// timestamp. Second precision keeps IDs readable; concurrent conversions for
// the same node within the same second are an accepted collision risk.
func NewModelID(nodeID string, t time.Time) string {
	return fmt.Sprintf("model_%s_%s", nodeID, t.Format("20060102_150405"))
}

// UploadPath returns the path for a model's uploaded source image.
func (l *Layout) UploadPath(modelID string) string {
	return filepath.Join(l.UploadsDir(), modelID+".png")
}

// ModelPath returns the path for a model's generated GLB file.
func (l *Layout) ModelPath(modelID string) string {
	return filepath.Join(l.ModelsDir(), modelID+".glb")
}

// PreviewPath returns the path for a model's post-conversion preview render.
func (l *Layout) PreviewPath(modelID string) string {
	return filepath.Join(l.RendersDir(), modelID+"_preview.png")
}

// RenderPath returns the path for an angle render. Microsecond precision in
// the timestamp lets multiple renders of the same model coexist.
func (l *Layout) RenderPath(modelID string, pitch, yaw float64, t time.Time) string {
	name := fmt.Sprintf("%s_p%d_y%d_%s_%06d.png",
		modelID, int(pitch), int(yaw), t.Format("20060102_150405"), t.Nanosecond()/1000)
	return filepath.Join(l.RendersDir(), name)
}

// ModelExists reports whether a model's GLB file is present and a regular file.
func (l *Layout) ModelExists(modelID string) bool {
	info, err := os.Stat(l.ModelPath(modelID))
	return err == nil && info.Mode().IsRegular()
}
