// Package httpx provides the HTTP surface of the policy analysis service.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/target/policy-analysis-api/internal/core"
	"github.com/target/policy-analysis-api/internal/domain/job"
	"github.com/target/policy-analysis-api/internal/domain/model"
	"github.com/target/policy-analysis-api/internal/service"
)

const (
	maxWebhookBody           = 1 << 20
	estimatedAnalysisSeconds = 120
	dedupPendingMarker       = "pending"
)

// AnalysisService is the job lifecycle surface the handlers depend on.
type AnalysisService interface {
	Enqueue(ctx context.Context, req model.AnalysisRequest) (string, error)
	GetStatus(id string) (model.Job, bool)
	List() []model.Job
}

// WebhookHandlers serves the signed webhook endpoints.
type WebhookHandlers struct {
	Analyses AnalysisService
	Secret   string
	// Dedup suppresses re-deliveries of the same policy upload. Optional.
	Dedup *core.WebhookDedupService
	// Results receives analysis-complete callbacks. Optional.
	Results core.PersistenceBackend
	// Features reports which optional integrations are configured.
	Features map[string]bool
	Clock    func() time.Time
	Logger   *slog.Logger
}

type policyUploadedPayload struct {
	EventType      string `json:"event_type"`
	PolicyID       string `json:"policy_id"`
	ClientID       string `json:"client_id"`
	ClientName     string `json:"client_name"`
	ClientIndustry string `json:"client_industry"`
	FileURL        string `json:"file_url"`
	FileName       string `json:"file_name"`
	FileSize       *int64 `json:"file_size"`
	UploadedBy     string `json:"uploaded_by"`
	PolicyType     string `json:"policy_type"`
	Renewal        bool   `json:"renewal"`
	Priority       string `json:"priority"`
	Carrier        string `json:"carrier"`
	CallbackURL    string `json:"callback_url"`
	TenantID       string `json:"tenant_id"`
}

func (p *policyUploadedPayload) validate() error {
	required := []struct{ name, value string }{
		{"policy_id", p.PolicyID},
		{"client_id", p.ClientID},
		{"client_name", p.ClientName},
		{"file_name", p.FileName},
		{"file_url", p.FileURL},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s is required and cannot be empty", f.name)
		}
	}
	if err := validateHTTPURL("file_url", p.FileURL); err != nil {
		return err
	}
	if p.CallbackURL != "" {
		return validateHTTPURL("callback_url", p.CallbackURL)
	}
	return nil
}

func (p *policyUploadedPayload) request() model.AnalysisRequest {
	return model.AnalysisRequest{
		PolicyID:       strings.TrimSpace(p.PolicyID),
		ClientID:       strings.TrimSpace(p.ClientID),
		ClientName:     p.ClientName,
		ClientIndustry: p.ClientIndustry,
		PolicyType:     p.PolicyType,
		Renewal:        p.Renewal,
		Carrier:        p.Carrier,
		FileName:       p.FileName,
		FileURL:        p.FileURL,
		CallbackURL:    p.CallbackURL,
		TenantID:       p.TenantID,
	}
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s must be a valid URL", field)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", field)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must have a valid host", field)
	}
	return nil
}

type webhookResponse struct {
	Success              bool   `json:"success"`
	AnalysisID           string `json:"analysis_id"`
	Message              string `json:"message"`
	EstimatedTimeSeconds int    `json:"estimated_time_seconds"`
}

func (h *WebhookHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func (h *WebhookHandlers) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock()
}

// readSigned reads the exact body and verifies its signature. It writes the
// error response itself and reports false on failure.
func (h *WebhookHandlers) readSigned(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || len(body) > maxWebhookBody {
		WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		return nil, false
	}
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "read_failed", Err: err})
		return nil, false
	}

	res, err := job.Verify(body, r.Header.Get(job.SignatureHeader), h.Secret)
	switch {
	case errors.Is(err, job.ErrMissingSignature):
		h.logger().WarnContext(r.Context(), "webhook rejected", "path", r.URL.Path, "reason", "missing signature")
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "missing_signature", Err: err})
		return nil, false
	case err != nil:
		h.logger().WarnContext(r.Context(), "webhook rejected", "path", r.URL.Path, "reason", "invalid signature")
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "invalid_signature", Err: err})
		return nil, false
	}
	if res == job.VerifiedNoSecret {
		h.logger().WarnContext(r.Context(), "no webhook secret configured, accepting unsigned request", "path", r.URL.Path)
	}
	return body, true
}

// PolicyUploaded queues an analysis for a policy uploaded to the upstream system.
func (h *WebhookHandlers) PolicyUploaded(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readSigned(w, r)
	if !ok {
		return
	}

	var p policyUploadedPayload
	if err := json.Unmarshal(body, &p); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return
	}
	if err := p.validate(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_payload", Err: err})
		return
	}

	ctx := r.Context()
	log := h.logger()
	log.InfoContext(ctx, "policy upload webhook received",
		"policy_id", p.PolicyID,
		"client_name", p.ClientName,
		"client_industry", p.ClientIndustry,
		"file_name", p.FileName)

	req := p.request()
	claimed := false
	if h.Dedup != nil {
		existing, ok, err := h.Dedup.Claim(ctx, req.PolicyID, dedupPendingMarker)
		switch {
		case err != nil:
			log.WarnContext(ctx, "webhook dedup unavailable", "policy_id", req.PolicyID, "error", err)
		case !ok:
			if existing == dedupPendingMarker {
				existing = ""
			}
			log.InfoContext(ctx, "duplicate policy webhook ignored", "policy_id", req.PolicyID, "job_id", existing)
			WriteJSON(w, http.StatusOK, webhookResponse{
				Success:              true,
				AnalysisID:           existing,
				Message:              "Policy analysis already in progress",
				EstimatedTimeSeconds: estimatedAnalysisSeconds,
			})
			return
		default:
			claimed = true
		}
	}

	id, err := h.Analyses.Enqueue(ctx, req)
	if err != nil {
		if claimed {
			if rerr := h.Dedup.Release(ctx, req.PolicyID); rerr != nil {
				log.WarnContext(ctx, "release webhook claim", "policy_id", req.PolicyID, "error", rerr)
			}
		}
		writeEnqueueError(w, err)
		return
	}
	if claimed {
		if err := h.Dedup.Bind(ctx, req.PolicyID, id); err != nil {
			log.WarnContext(ctx, "bind webhook claim", "policy_id", req.PolicyID, "job_id", id, "error", err)
		}
	}

	WriteJSON(w, http.StatusOK, webhookResponse{
		Success:              true,
		AnalysisID:           id,
		Message:              "Policy analysis queued successfully",
		EstimatedTimeSeconds: estimatedAnalysisSeconds,
	})
}

func writeEnqueueError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrOrchestratorStopped) {
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "shutting_down", Err: err})
		return
	}
	WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "enqueue_failed", Err: err})
}

// Test reports connectivity and which integrations are configured.
func (h *WebhookHandlers) Test(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":                    "connected",
		"timestamp":                 h.now().UTC().Format(time.RFC3339),
		"webhook_secret_configured": h.Secret != "",
	}
	for name, on := range h.Features {
		resp[name+"_configured"] = on
	}
	WriteJSON(w, http.StatusOK, resp)
}

// AnalysisComplete receives a signed callback envelope and records it.
func (h *WebhookHandlers) AnalysisComplete(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readSigned(w, r)
	if !ok {
		return
	}

	var env model.CallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return
	}
	if strings.TrimSpace(env.AnalysisID) == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_payload", "analysis_id is required and cannot be empty")
		return
	}
	if !env.Status.Terminal() {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_payload", "status must be one of: completed, failed")
		return
	}

	ctx := r.Context()
	h.logger().InfoContext(ctx, "analysis callback received",
		"job_id", env.AnalysisID,
		"policy_id", env.PolicyID,
		"status", env.Status)

	if h.Results != nil {
		if err := h.recordCallback(ctx, env); err != nil {
			h.logger().ErrorContext(ctx, "record analysis callback", "job_id", env.AnalysisID, "error", err)
			WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "persist_failed", Err: err})
			return
		}
	}

	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "analysis_id": env.AnalysisID})
}

func (h *WebhookHandlers) recordCallback(ctx context.Context, env model.CallbackEnvelope) error {
	completedAt := env.CompletedAt
	if completedAt.IsZero() {
		completedAt = h.now().UTC()
	}
	fields := model.StatusFields{
		AnalysisID:  env.AnalysisID,
		PolicyID:    env.PolicyID,
		Status:      env.Status,
		Error:       env.ErrorMessage,
		UpdatedAt:   completedAt,
		CompletedAt: &completedAt,
	}
	if env.Status == model.JobStatusFailed {
		fields.Progress = model.ProgressFailed
		return h.Results.UpsertStatus(ctx, env.AnalysisID, fields)
	}

	fields.Progress = model.ProgressComplete
	if err := h.Results.UpsertStatus(ctx, env.AnalysisID, fields); err != nil {
		return err
	}
	return h.Results.UpsertResult(ctx, env.AnalysisID, &model.AnalysisResult{
		AnalysisID:            env.AnalysisID,
		PolicyID:              env.PolicyID,
		ClientID:              env.ClientID,
		ClientName:            env.ClientName,
		Status:                env.Status,
		OverallScore:          env.OverallScore,
		Recommendation:        env.Recommendation,
		ReportPath:            env.ReportPath,
		ReportStoragePath:     env.ReportStoragePath,
		AnalysisData:          env.AnalysisData,
		ProcessingTimeSeconds: env.ProcessingTimeSeconds,
		CompletedAt:           completedAt,
	})
}
