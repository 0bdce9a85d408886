package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/policy-analysis-api/internal/core"
	"github.com/target/policy-analysis-api/internal/domain/job"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Analyses AnalysisService
	Notifier job.Notifier
	Reports  ReportLinker
	Dedup    *core.WebhookDedupService
	Results  core.PersistenceBackend
	Jobs     JobHealth
	Delivery DeliveryHealth
	// Configuration
	WebhookSecret  string
	TempDir        string
	MaxUploadBytes int64
	MaxStatusWait  time.Duration
	Features       map[string]bool
	Logger         *slog.Logger // Logger for HTTP errors (optional)
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	webhooks := &WebhookHandlers{
		Analyses: services.Analyses,
		Secret:   services.WebhookSecret,
		Dedup:    services.Dedup,
		Results:  services.Results,
		Features: services.Features,
		Logger:   services.Logger,
	}
	analyses := &AnalysisHandlers{
		Analyses:       services.Analyses,
		Notifier:       services.Notifier,
		Reports:        services.Reports,
		TempDir:        services.TempDir,
		MaxUploadBytes: services.MaxUploadBytes,
		MaxStatusWait:  services.MaxStatusWait,
		Logger:         services.Logger,
	}

	limit := LimitBody(maxWebhookBody)
	mux.Handle("POST /webhook/policy-uploaded", limit(http.HandlerFunc(webhooks.PolicyUploaded)))
	mux.Handle("POST /webhook/test", limit(http.HandlerFunc(webhooks.Test)))
	mux.Handle("POST /webhook/analysis-complete", limit(http.HandlerFunc(webhooks.AnalysisComplete)))

	mux.HandleFunc("POST /analysis/upload", analyses.Upload)
	mux.HandleFunc("GET /analysis/{id}/status", analyses.Status)
	mux.HandleFunc("GET /analysis/{id}/report", analyses.Report)
	mux.HandleFunc("GET /analysis/{$}", analyses.List)
	mux.HandleFunc("GET /analysis", analyses.List)

	health := HealthHandler{Jobs: services.Jobs, Delivery: services.Delivery}
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)
	mux.HandleFunc("GET /{$}", rootHandler)
	return mux
}

func rootHandler(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"service": "policy-analysis-api",
		"status":  "operational",
	})
}
