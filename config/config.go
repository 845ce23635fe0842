// Package config provides configuration loading for the stage node service.
// Precedence: defaults → YAML file → environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the complete service configuration.
type Config struct {
	// Server holds the HTTP server configuration.
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Storage holds the local artifact storage configuration.
	Storage StorageConfig `yaml:"storage" env:"STORAGE"`

	// Fal holds the remote inference API configuration.
	Fal FalConfig `yaml:"fal" env:"FAL"`

	// Render holds the render pipeline configuration.
	Render RenderConfig `yaml:"render" env:"RENDER"`

	// Log holds the logging configuration.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ServerConfig configures the HTTP and metrics servers.
type ServerConfig struct {
	// HTTP port
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics port
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// Public base URL used in model/preview links
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// Read timeout
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// Write timeout
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// Allowed CORS origins
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	// Convert endpoint rate limit (requests per second, 0 disables)
	ConvertRPS float64 `yaml:"convert_rps" env:"CONVERT_RPS"`
	// Convert endpoint rate limit burst
	ConvertBurst int `yaml:"convert_burst" env:"CONVERT_BURST"`
}

// StorageConfig configures the on-disk artifact layout.
type StorageConfig struct {
	// Root directory holding uploads/, models/ and renders/
	Root string `yaml:"root" env:"ROOT"`
}

// FalConfig configures the fal.ai queue client and conversion orchestrator.
type FalConfig struct {
	// API credential ("Key ..." authorization)
	APIKey string `yaml:"api_key" env:"KEY"`
	// Queue API base URL
	QueueBaseURL string `yaml:"queue_base_url" env:"QUEUE_BASE_URL"`
	// REST API base URL (storage uploads)
	RestBaseURL string `yaml:"rest_base_url" env:"REST_BASE_URL"`
	// Job profile: trellis, triposr or sam3d
	Profile string `yaml:"profile" env:"PROFILE"`
	// Queue status poll interval
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	// Upper bound on a single inference job await
	JobTimeout time.Duration `yaml:"job_timeout" env:"JOB_TIMEOUT"`
	// Upper bound on the mesh download
	DownloadTimeout time.Duration `yaml:"download_timeout" env:"DOWNLOAD_TIMEOUT"`
}

// RenderConfig configures the render backend chain.
type RenderConfig struct {
	// Backend override: auto, raster, vector or placeholder
	Backend string `yaml:"backend" env:"BACKEND"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8090,
			MetricsPort:     9091,
			BaseURL:         "http://localhost:8090",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    10 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
			ConvertRPS:      1,
			ConvertBurst:    4,
		},
		Storage: StorageConfig{
			Root: "storage",
		},
		Fal: FalConfig{
			QueueBaseURL:    "https://queue.fal.run",
			RestBaseURL:     "https://rest.alpha.fal.ai",
			Profile:         "trellis",
			PollInterval:    3 * time.Second,
			JobTimeout:      10 * time.Minute,
			DownloadTimeout: 2 * time.Minute,
		},
		Render: RenderConfig{
			Backend: "auto",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("storage root must not be empty")
	}
	if c.Fal.PollInterval <= 0 {
		return fmt.Errorf("invalid fal poll_interval: %v", c.Fal.PollInterval)
	}
	switch c.Render.Backend {
	case "auto", "raster", "vector", "placeholder":
	default:
		return fmt.Errorf("unknown render backend: %q", c.Render.Backend)
	}
	return nil
}
