package threed

import "time"

// Config configures the conversion orchestrator and its fal.ai queue client.
type Config struct {
	// API credential ("Key ..." authorization header)
	APIKey string `json:"api_key" yaml:"api_key"`
	// Queue API base URL
	QueueBaseURL string `json:"queue_base_url" yaml:"queue_base_url"`
	// REST API base URL (storage uploads)
	RestBaseURL string `json:"rest_base_url" yaml:"rest_base_url"`
	// Job profile identifier
	Profile string `json:"profile" yaml:"profile"`
	// Queue status poll interval
	PollInterval time.Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	// Upper bound on a single inference job await
	JobTimeout time.Duration `json:"job_timeout,omitempty" yaml:"job_timeout,omitempty"`
	// Upper bound on the mesh download
	DownloadTimeout time.Duration `json:"download_timeout,omitempty" yaml:"download_timeout,omitempty"`
}

// DefaultConfig returns default orchestrator config.
func DefaultConfig() Config {
	return Config{
		QueueBaseURL:    "https://queue.fal.run",
		RestBaseURL:     "https://rest.alpha.fal.ai",
		Profile:         "trellis",
		PollInterval:    3 * time.Second,
		JobTimeout:      10 * time.Minute,
		DownloadTimeout: 2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.QueueBaseURL == "" {
		c.QueueBaseURL = def.QueueBaseURL
	}
	if c.RestBaseURL == "" {
		c.RestBaseURL = def.RestBaseURL
	}
	if c.Profile == "" {
		c.Profile = def.Profile
	}
	if c.PollInterval == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = def.JobTimeout
	}
	if c.DownloadTimeout == 0 {
		c.DownloadTimeout = def.DownloadTimeout
	}
	return c
}
