package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// PipelineConfig controls the analysis orchestrator.
type PipelineConfig struct {
	// TempDir receives uploaded documents. Each upload is removed when its job exits.
	TempDir string `env:"PIPELINE_TEMP_DIR"`

	// ReportsDir receives rendered reports.
	ReportsDir string `env:"PIPELINE_REPORTS_DIR" envDefault:"reports"`

	// RetryDelays is the analyzer retry schedule indexed by retry number.
	RetryDelays []time.Duration `env:"PIPELINE_RETRY_DELAYS" envDefault:"30s,60s"`

	// MaxRetries is the analyzer retry budget.
	MaxRetries int `env:"PIPELINE_MAX_RETRIES" envDefault:"2"`

	// ExtractTimeout bounds document download and text extraction.
	ExtractTimeout time.Duration `env:"PIPELINE_EXTRACT_TIMEOUT" envDefault:"2m"`

	// AnalyzeTimeout bounds a single analyzer attempt.
	AnalyzeTimeout time.Duration `env:"PIPELINE_ANALYZE_TIMEOUT" envDefault:"5m"`

	// ShutdownTimeout bounds how long shutdown waits for in-flight jobs.
	ShutdownTimeout time.Duration `env:"PIPELINE_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Sanitize applies guardrails to pipeline configuration values.
func (p *PipelineConfig) Sanitize() {
	if strings.TrimSpace(p.TempDir) == "" {
		p.TempDir = filepath.Join(os.TempDir(), "policy-analysis")
	}
	if strings.TrimSpace(p.ReportsDir) == "" {
		p.ReportsDir = "reports"
	}
	delays := p.RetryDelays[:0]
	for _, d := range p.RetryDelays {
		if d > 0 {
			delays = append(delays, d)
		}
	}
	p.RetryDelays = delays
	if len(p.RetryDelays) == 0 {
		p.RetryDelays = []time.Duration{30 * time.Second, 60 * time.Second}
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.ShutdownTimeout <= 0 {
		p.ShutdownTimeout = 30 * time.Second
	}
}

// CallbackConfig controls signed callback delivery.
type CallbackConfig struct {
	// Secret is the shared HMAC secret. Inbound webhooks are verified with it and
	// outbound callbacks are signed with it. Empty disables both.
	Secret string `env:"WEBHOOK_SECRET"`

	Timeout    time.Duration `env:"CALLBACK_TIMEOUT"     envDefault:"30s"`
	MaxRetries int           `env:"CALLBACK_MAX_RETRIES" envDefault:"2"`
	RetryDelay time.Duration `env:"CALLBACK_RETRY_DELAY" envDefault:"5s"`
	Workers    int           `env:"CALLBACK_WORKERS"     envDefault:"4"`
	QueueSize  int           `env:"CALLBACK_QUEUE_SIZE"  envDefault:"256"`
}

// Sanitize applies guardrails to callback configuration values.
func (c *CallbackConfig) Sanitize() {
	c.Secret = strings.TrimSpace(c.Secret)
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.QueueSize < 1 {
		c.QueueSize = 1
	}
}

// AnalyzerConfig controls the Anthropic Messages API analyzer.
type AnalyzerConfig struct {
	APIKey  string `env:"ANTHROPIC_API_KEY"`
	BaseURL string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com"`

	// Model runs the analysis phase (or the single phase when TwoPhase is off).
	Model     string `env:"CLAUDE_MODEL"      envDefault:"claude-sonnet-4-20250514"`
	MaxTokens int    `env:"CLAUDE_MAX_TOKENS" envDefault:"16384"`

	// ExtractionModel runs the structured extraction phase.
	ExtractionModel     string `env:"EXTRACTION_MODEL"      envDefault:"claude-haiku-4-5-20251001"`
	ExtractionMaxTokens int    `env:"EXTRACTION_MAX_TOKENS" envDefault:"8192"`

	TwoPhase bool `env:"USE_TWO_PHASE" envDefault:"true"`

	// PromptsDir optionally overrides the embedded system prompts.
	PromptsDir string `env:"ANALYZER_PROMPTS_DIR"`

	// ScoreExpr and RecommendationExpr are JMESPath expressions evaluated against analysis data.
	ScoreExpr          string `env:"ANALYSIS_SCORE_EXPR"          envDefault:"executive_summary.key_metrics.overall_maturity_score"`
	RecommendationExpr string `env:"ANALYSIS_RECOMMENDATION_EXPR" envDefault:"executive_summary.recommendation"`
}

// Sanitize applies guardrails to analyzer configuration values.
func (a *AnalyzerConfig) Sanitize() {
	a.APIKey = strings.TrimSpace(a.APIKey)
	a.BaseURL = strings.TrimRight(strings.TrimSpace(a.BaseURL), "/")
	if a.BaseURL == "" {
		a.BaseURL = "https://api.anthropic.com"
	}
	if a.MaxTokens <= 0 {
		a.MaxTokens = 16384
	}
	if a.ExtractionMaxTokens <= 0 {
		a.ExtractionMaxTokens = 8192
	}
	if strings.TrimSpace(a.Model) == "" {
		a.Model = "claude-sonnet-4-20250514"
	}
	if strings.TrimSpace(a.ExtractionModel) == "" {
		a.ExtractionModel = "claude-haiku-4-5-20251001"
	}
}

// StorageConfig controls durable report hand-off to an S3-compatible object store.
type StorageConfig struct {
	Enabled   bool   `env:"STORAGE_ENABLED"    envDefault:"false"`
	Endpoint  string `env:"STORAGE_ENDPOINT"   envDefault:"localhost:9000"`
	AccessKey string `env:"STORAGE_ACCESS_KEY"`
	SecretKey string `env:"STORAGE_SECRET_KEY"`
	Bucket    string `env:"STORAGE_BUCKET"     envDefault:"policy-reports"`
	Region    string `env:"STORAGE_REGION"`
	UseSSL    bool   `env:"STORAGE_USE_SSL"    envDefault:"true"`

	// CreateBucket creates the bucket at startup when it does not exist.
	CreateBucket bool `env:"STORAGE_CREATE_BUCKET" envDefault:"false"`

	// PresignExpiry is the lifetime of report download links.
	PresignExpiry time.Duration `env:"STORAGE_PRESIGN_EXPIRY" envDefault:"15m"`
}

// Sanitize applies guardrails to storage configuration values.
func (s *StorageConfig) Sanitize() {
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.Bucket = strings.TrimSpace(s.Bucket)
	if s.Endpoint == "" || s.Bucket == "" {
		s.Enabled = false
	}
	if s.PresignExpiry <= 0 {
		s.PresignExpiry = 15 * time.Minute
	}
	if s.PresignExpiry > 7*24*time.Hour {
		s.PresignExpiry = 7 * 24 * time.Hour
	}
}
