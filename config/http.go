package config

import "time"

const (
	defaultMaxUploadBytes int64 = 50 << 20
	maxStatusWait               = 60 * time.Second
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://app.example.com").
	// Used for absolute status links in failure notifications.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// MaxUploadBytes caps multipart upload size for POST /analysis/upload.
	MaxUploadBytes int64 `env:"HTTP_MAX_UPLOAD_BYTES" envDefault:"52428800"`

	// MaxStatusWait caps the ?wait= long-poll duration on the status endpoint.
	MaxStatusWait time.Duration `env:"HTTP_MAX_STATUS_WAIT" envDefault:"30s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.MaxUploadBytes <= 0 {
		h.MaxUploadBytes = defaultMaxUploadBytes
	}
	if h.MaxStatusWait < 0 {
		h.MaxStatusWait = 0
	}
	if h.MaxStatusWait > maxStatusWait {
		h.MaxStatusWait = maxStatusWait
	}
}
