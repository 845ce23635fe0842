package threed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Unpackyourdream-Paprika/sam3dserver/testutil"
	"github.com/Unpackyourdream-Paprika/sam3dserver/types"
)

// jobOutcome scripts the response payload (or job failure) for the n-th
// submission, 1-based.
type jobOutcome struct {
	status int
	body   any
}

type falServer struct {
	t   *testing.T
	srv *httptest.Server

	mu            sync.Mutex
	submissions   []map[string]any
	outcomes      []jobOutcome
	authHeaders   []string
	meshRequested []string
	meshBytes     []byte
}

func newFalServer(t *testing.T) *falServer {
	t.Helper()

	fs := &falServer{t: t}

	meshPath := filepath.Join(t.TempDir(), "fixture.glb")
	testutil.WriteTriangleGLB(t, meshPath)
	data, err := os.ReadFile(meshPath)
	require.NoError(t, err)
	fs.meshBytes = data

	mux := http.NewServeMux()
	mux.HandleFunc("POST /storage/upload/initiate", func(w http.ResponseWriter, r *http.Request) {
		fs.recordAuth(r)
		json.NewEncoder(w).Encode(map[string]string{
			"upload_url": fs.srv.URL + "/put",
			"file_url":   fs.srv.URL + "/files/src.png",
		})
	})
	mux.HandleFunc("PUT /put", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /fal-ai/{model}", func(w http.ResponseWriter, r *http.Request) {
		fs.recordAuth(r)
		var args map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&args))

		fs.mu.Lock()
		fs.submissions = append(fs.submissions, args)
		n := len(fs.submissions)
		fs.mu.Unlock()

		json.NewEncoder(w).Encode(map[string]string{
			"request_id":   fmt.Sprintf("r%d", n),
			"status_url":   fmt.Sprintf("%s/requests/%d/status", fs.srv.URL, n),
			"response_url": fmt.Sprintf("%s/requests/%d", fs.srv.URL, n),
		})
	})
	mux.HandleFunc("GET /requests/{n}/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "COMPLETED"})
	})
	mux.HandleFunc("GET /requests/{n}", func(w http.ResponseWriter, r *http.Request) {
		var n int
		fmt.Sscanf(r.PathValue("n"), "%d", &n)
		require.LessOrEqual(t, n, len(fs.outcomes), "unscripted submission %d", n)

		outcome := fs.outcomes[n-1]
		w.WriteHeader(outcome.status)
		json.NewEncoder(w).Encode(outcome.body)
	})
	mux.HandleFunc("GET /files/{name}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.meshRequested = append(fs.meshRequested, r.PathValue("name"))
		fs.mu.Unlock()
		w.Write(fs.meshBytes)
	})

	fs.srv = httptest.NewServer(mux)
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *falServer) recordAuth(r *http.Request) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.authHeaders = append(fs.authHeaders, r.Header.Get("Authorization"))
}

func (fs *falServer) submissionCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.submissions)
}

func (fs *falServer) submission(n int) map[string]any {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.submissions[n-1]
}

func (fs *falServer) meshURL(name string) string {
	return fs.srv.URL + "/files/" + name
}

func (fs *falServer) config(profile string) Config {
	return Config{
		APIKey:          "test-key",
		QueueBaseURL:    fs.srv.URL,
		RestBaseURL:     fs.srv.URL,
		Profile:         profile,
		PollInterval:    10 * time.Millisecond,
		JobTimeout:      5 * time.Second,
		DownloadTimeout: 5 * time.Second,
	}
}

func writeSourceImage(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "src.png")
	require.NoError(t, os.WriteFile(path, []byte("fake png bytes"), 0o644))
	return path
}

func TestNewConverter_UnknownProfile(t *testing.T) {
	_, err := NewConverter(Config{APIKey: "k", Profile: "warpdrive"}, zap.NewNop())
	assert.ErrorContains(t, err, "unknown job profile")
}

func TestConvert_MissingCredential(t *testing.T) {
	fs := newFalServer(t)
	cfg := fs.config("trellis")
	cfg.APIKey = ""

	conv, err := NewConverter(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = conv.Convert(testutil.TestContext(t), ConvertInput{ImagePath: "x.png", OutputPath: "out.glb"})
	require.Error(t, err)
	assert.Equal(t, types.ErrConfiguration, types.GetErrorCode(err))
	// No network call is made without a credential.
	assert.Equal(t, 0, fs.submissionCount())
}

func TestConvert_Success(t *testing.T) {
	dir := t.TempDir()
	fs := newFalServer(t)
	fs.outcomes = []jobOutcome{
		{http.StatusOK, map[string]any{"model_mesh": map[string]any{"url": fs.meshURL("mesh.glb")}}},
	}

	conv, err := NewConverter(fs.config("trellis"), zap.NewNop())
	require.NoError(t, err)

	out := filepath.Join(dir, "models", "model_n1_x.glb")
	result, err := conv.Convert(testutil.TestContext(t), ConvertInput{
		ImagePath:  writeSourceImage(t, dir),
		OutputPath: out,
		Prompt:     "chair",
		Seed:       42,
	})
	require.NoError(t, err)

	assert.Equal(t, out, result.MeshPath)
	assert.Equal(t, 3, result.VertexCount)
	assert.Equal(t, 1, result.FaceCount)
	assert.FileExists(t, out)

	require.Equal(t, 1, fs.submissionCount())
	args := fs.submission(1)
	assert.Equal(t, fs.srv.URL+"/files/src.png", args["image_url"])
	assert.Equal(t, 7.5, args["ss_guidance_strength"])
	assert.Equal(t, float64(42), args["seed"])

	for _, auth := range fs.authHeaders {
		assert.Equal(t, "Key test-key", auth)
	}
}

func TestConvert_SegmentationRetrySucceeds(t *testing.T) {
	dir := t.TempDir()
	fs := newFalServer(t)
	fs.outcomes = []jobOutcome{
		{http.StatusUnprocessableEntity, map[string]any{"detail": "No object detected in image"}},
		{http.StatusOK, map[string]any{"object_mesh": map[string]any{"url": fs.meshURL("object.glb")}}},
	}

	conv, err := NewConverter(fs.config("sam3d"), zap.NewNop())
	require.NoError(t, err)

	result, err := conv.Convert(testutil.TestContext(t), ConvertInput{
		ImagePath:  writeSourceImage(t, dir),
		OutputPath: filepath.Join(dir, "out.glb"),
		Prompt:     "chair",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.VertexCount)

	// Exactly two submissions: primary then relaxed.
	require.Equal(t, 2, fs.submissionCount())

	primary := fs.submission(1)
	assert.Equal(t, "chair", primary["prompt"])
	assert.Equal(t, 0.45, primary["detection_threshold"])

	relaxed := fs.submission(2)
	assert.NotContains(t, relaxed, "prompt")
	assert.Equal(t, 0.2, relaxed["detection_threshold"])
	assert.Equal(t, true, relaxed["use_full_image"])
}

func TestConvert_UnrecognizedErrorNoRetry(t *testing.T) {
	dir := t.TempDir()
	fs := newFalServer(t)
	fs.outcomes = []jobOutcome{
		{http.StatusInternalServerError, map[string]any{"detail": "CUDA out of memory"}},
	}

	conv, err := NewConverter(fs.config("sam3d"), zap.NewNop())
	require.NoError(t, err)

	_, err = conv.Convert(testutil.TestContext(t), ConvertInput{
		ImagePath:  writeSourceImage(t, dir),
		OutputPath: filepath.Join(dir, "out.glb"),
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrTransport, types.GetErrorCode(err))
	assert.Equal(t, 1, fs.submissionCount())
}

func TestConvert_SegmentationFailsTwice(t *testing.T) {
	dir := t.TempDir()
	fs := newFalServer(t)
	fs.outcomes = []jobOutcome{
		{http.StatusUnprocessableEntity, map[string]any{"detail": "No object detected in image"}},
		{http.StatusUnprocessableEntity, map[string]any{"detail": "segmentation failed: empty mask"}},
	}

	conv, err := NewConverter(fs.config("sam3d"), zap.NewNop())
	require.NoError(t, err)

	_, err = conv.Convert(testutil.TestContext(t), ConvertInput{
		ImagePath:  writeSourceImage(t, dir),
		OutputPath: filepath.Join(dir, "out.glb"),
		Prompt:     "chair",
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrSegmentationFailed, types.GetErrorCode(err))
	assert.Equal(t, 2, fs.submissionCount())
}

func TestConvert_PerObjectMeshPreferred(t *testing.T) {
	dir := t.TempDir()
	fs := newFalServer(t)
	fs.outcomes = []jobOutcome{
		{http.StatusOK, map[string]any{
			"scene_mesh":  map[string]any{"url": fs.meshURL("scene.glb")},
			"object_mesh": map[string]any{"url": fs.meshURL("object.glb")},
		}},
	}

	conv, err := NewConverter(fs.config("sam3d"), zap.NewNop())
	require.NoError(t, err)

	_, err = conv.Convert(testutil.TestContext(t), ConvertInput{
		ImagePath:  writeSourceImage(t, dir),
		OutputPath: filepath.Join(dir, "out.glb"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"object.glb"}, fs.meshRequested)
}

func TestConvert_ResponseWithoutMeshReference(t *testing.T) {
	dir := t.TempDir()
	fs := newFalServer(t)
	fs.outcomes = []jobOutcome{
		{http.StatusOK, map[string]any{"timings": map[string]any{"inference": 4.2}}},
	}

	conv, err := NewConverter(fs.config("trellis"), zap.NewNop())
	require.NoError(t, err)

	_, err = conv.Convert(testutil.TestContext(t), ConvertInput{
		ImagePath:  writeSourceImage(t, dir),
		OutputPath: filepath.Join(dir, "out.glb"),
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrResponseShape, types.GetErrorCode(err))
}

func TestConvert_StatsFailureDegradesToZero(t *testing.T) {
	dir := t.TempDir()
	fs := newFalServer(t)
	fs.meshBytes = []byte("not a glb at all")
	fs.outcomes = []jobOutcome{
		{http.StatusOK, map[string]any{"model_mesh": fs.meshURL("broken.glb")}},
	}

	conv, err := NewConverter(fs.config("trellis"), zap.NewNop())
	require.NoError(t, err)

	result, err := conv.Convert(testutil.TestContext(t), ConvertInput{
		ImagePath:  writeSourceImage(t, dir),
		OutputPath: filepath.Join(dir, "out.glb"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.VertexCount)
	assert.Equal(t, 0, result.FaceCount)
	assert.FileExists(t, result.MeshPath)
}

func TestConvert_UploadFailure(t *testing.T) {
	dir := t.TempDir()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /storage/upload/initiate", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := Config{
		APIKey:       "k",
		QueueBaseURL: srv.URL,
		RestBaseURL:  srv.URL,
		Profile:      "trellis",
		PollInterval: 10 * time.Millisecond,
	}
	conv, err := NewConverter(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = conv.Convert(testutil.TestContext(t), ConvertInput{
		ImagePath:  writeSourceImage(t, dir),
		OutputPath: filepath.Join(dir, "out.glb"),
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrTransport, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestExtractMeshURL(t *testing.T) {
	fields := []string{"object_mesh", "scene_mesh", "model_url"}

	tests := []struct {
		name    string
		payload map[string]any
		want    string
	}{
		{
			name:    "structured object with url",
			payload: map[string]any{"object_mesh": map[string]any{"url": "http://x/a.glb"}},
			want:    "http://x/a.glb",
		},
		{
			name:    "direct url string",
			payload: map[string]any{"model_url": "https://x/b.glb"},
			want:    "https://x/b.glb",
		},
		{
			name: "priority order wins",
			payload: map[string]any{
				"scene_mesh":  map[string]any{"url": "http://x/scene.glb"},
				"object_mesh": map[string]any{"url": "http://x/object.glb"},
			},
			want: "http://x/object.glb",
		},
		{
			name:    "non-url string ignored",
			payload: map[string]any{"model_url": "done"},
			want:    "",
		},
		{
			name:    "empty payload",
			payload: map[string]any{},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractMeshURL(tt.payload, fields))
		})
	}
}
