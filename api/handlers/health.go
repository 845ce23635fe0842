package handlers

import (
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Unpackyourdream-Paprika/sam3dserver/storage"
)

// HealthHandler serves the service-info and health endpoints.
type HealthHandler struct {
	layout *storage.Layout
	logger *zap.Logger
}

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status    string          `json:"status"` // "healthy" or "degraded"
	Timestamp time.Time       `json:"timestamp"`
	Storage   map[string]bool `json:"storage"`
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(layout *storage.Layout, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		layout: layout,
		logger: logger,
	}
}

// HandleRoot serves the service-info endpoint at /.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "Stage Node API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"convert": "POST /api/stage/convert",
			"render":  "POST /api/stage/render",
			"model":   "GET /models/{model_id}.glb",
		},
	})
}

// HandleHealth reports the presence of the storage directories. A missing
// directory degrades the status instead of failing the endpoint.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{
		"uploads": dirExists(h.layout.UploadsDir()),
		"models":  dirExists(h.layout.ModelsDir()),
		"renders": dirExists(h.layout.RendersDir()),
	}

	status := "healthy"
	for name, ok := range checks {
		if !ok {
			status = "degraded"
			h.logger.Warn("storage directory missing", zap.String("dir", name))
		}
	}

	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
		Storage:   checks,
	})
}

// HandleVersion serves build information.
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
