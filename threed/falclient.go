package threed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Unpackyourdream-Paprika/sam3dserver/internal/tlsutil"
)

// jobError is a failure reported by the inference job itself, as opposed to
// a transport failure reaching it.
type jobError struct {
	StatusCode int
	Detail     string
}

func (e *jobError) Error() string {
	return fmt.Sprintf("inference job failed: status=%d detail=%s", e.StatusCode, e.Detail)
}

// falClient speaks the fal.ai queue HTTP contract: storage upload, job
// submission, status polling and result download.
type falClient struct {
	cfg      Config
	api      *http.Client
	download *http.Client
	logger   *zap.Logger
}

func newFalClient(cfg Config, logger *zap.Logger) *falClient {
	return &falClient{
		cfg:      cfg,
		api:      tlsutil.SecureHTTPClient(30 * time.Second),
		download: tlsutil.SecureHTTPClient(cfg.DownloadTimeout),
		logger:   logger,
	}
}

func (c *falClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Key "+c.cfg.APIKey)
}

type uploadInitResponse struct {
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

// UploadFile uploads a local file to the remote object storage and returns
// a fetchable URL for it.
func (c *falClient) UploadFile(ctx context.Context, path, contentType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	initBody, _ := json.Marshal(map[string]string{
		"content_type": contentType,
		"file_name":    filepath.Base(path),
	})
	endpoint := strings.TrimRight(c.cfg.RestBaseURL, "/") + "/storage/upload/initiate"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(initBody))
	if err != nil {
		return "", err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.api.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload initiate failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload initiate failed: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	var init uploadInitResponse
	if err := json.NewDecoder(resp.Body).Decode(&init); err != nil {
		return "", fmt.Errorf("failed to decode upload initiate response: %w", err)
	}
	if init.UploadURL == "" || init.FileURL == "" {
		return "", fmt.Errorf("upload initiate response missing URLs")
	}

	putReq, err := http.NewRequestWithContext(ctx, http.MethodPut, init.UploadURL, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	putReq.Header.Set("Content-Type", contentType)

	putResp, err := c.api.Do(putReq)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer putResp.Body.Close()

	if putResp.StatusCode >= 400 {
		return "", fmt.Errorf("upload failed: status=%d", putResp.StatusCode)
	}

	c.logger.Info("image uploaded", zap.String("file_url", init.FileURL), zap.Int("bytes", len(data)))
	return init.FileURL, nil
}

type queueSubmission struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type queueStatus struct {
	Status string `json:"status"`
}

// Submit enqueues an inference job and returns its queue handle.
func (c *falClient) Submit(ctx context.Context, endpoint string, args map[string]any) (*queueSubmission, error) {
	payload, _ := json.Marshal(args)
	url := strings.TrimRight(c.cfg.QueueBaseURL, "/") + "/" + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("job submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("job submission failed: status=%d body=%s", resp.StatusCode, string(errBody))
	}

	var sub queueSubmission
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, fmt.Errorf("failed to decode submission response: %w", err)
	}
	if sub.RequestID == "" {
		return nil, fmt.Errorf("submission response missing request_id")
	}
	if sub.StatusURL == "" {
		sub.StatusURL = url + "/requests/" + sub.RequestID + "/status"
	}
	if sub.ResponseURL == "" {
		sub.ResponseURL = url + "/requests/" + sub.RequestID
	}

	c.logger.Debug("job submitted", zap.String("endpoint", endpoint), zap.String("request_id", sub.RequestID))
	return &sub, nil
}

// Await polls the job until completion and returns its response payload. The
// wait is bounded by the configured job timeout.
func (c *falClient) Await(ctx context.Context, sub *queueSubmission) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.JobTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("inference job %s: %w", sub.RequestID, ctx.Err())
		case <-ticker.C:
			status, err := c.fetchStatus(ctx, sub)
			if err != nil {
				// Transient status failures are retried on the next tick.
				c.logger.Debug("status poll failed", zap.String("request_id", sub.RequestID), zap.Error(err))
				continue
			}

			switch status {
			case "COMPLETED", "FAILED":
				return c.fetchResponse(ctx, sub)
			}
		}
	}
}

func (c *falClient) fetchStatus(ctx context.Context, sub *queueSubmission) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.StatusURL, nil)
	if err != nil {
		return "", err
	}
	c.authorize(req)

	resp, err := c.api.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var status queueStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return "", err
	}
	return status.Status, nil
}

func (c *falClient) fetchResponse(ctx context.Context, sub *queueSubmission) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sub.ResponseURL, nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)

	resp, err := c.api.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job response: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read job response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &jobError{StatusCode: resp.StatusCode, Detail: extractDetail(body)}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode job response: %w", err)
	}
	return payload, nil
}

// extractDetail pulls a human-readable detail out of an error body, falling
// back to the raw body.
func extractDetail(body []byte) string {
	var wrapper struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Detail != nil {
		switch d := wrapper.Detail.(type) {
		case string:
			return d
		default:
			if encoded, err := json.Marshal(d); err == nil {
				return string(encoded)
			}
		}
	}
	return string(body)
}

// DownloadTo fetches a URL and persists the bytes to outputPath, creating
// parent directories as needed.
func (c *falClient) DownloadTo(ctx context.Context, url, outputPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("download failed: status=%d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output dir: %w", err)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", outputPath, err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("download interrupted: %w", err)
	}
	return n, nil
}
