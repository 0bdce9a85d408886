package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/policy-analysis-api/internal/domain/job"
	"github.com/target/policy-analysis-api/internal/domain/model"
)

const (
	multipartMemory      = 8 << 20
	defaultMaxUpload     = 50 << 20
	defaultMaxStatusWait = 30 * time.Second
	unknownClientName    = "Unknown"
)

// ReportLinker issues download links for reports held in object storage.
type ReportLinker interface {
	Presign(ctx context.Context, key string) (string, error)
}

// AnalysisHandlers serves direct uploads, status polling and report downloads.
type AnalysisHandlers struct {
	Analyses AnalysisService
	// Notifier lets status requests wait for the next change. Optional.
	Notifier job.Notifier
	// Reports presigns stored reports when no local copy remains. Optional.
	Reports        ReportLinker
	TempDir        string
	MaxUploadBytes int64
	MaxStatusWait  time.Duration
	Logger         *slog.Logger
}

func (h *AnalysisHandlers) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// Upload accepts a multipart PDF and queues it for analysis.
func (h *AnalysisHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUpload
	}
	if r.ContentLength > limit {
		WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteErrorMessage(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, "missing_file", "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_file", "Only PDF files are accepted")
		return
	}
	clientName := strings.TrimSpace(r.FormValue("client_name"))
	if clientName == "" {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_form", "client_name is required and cannot be empty")
		return
	}
	renewal := false
	if v := r.FormValue("renewal"); v != "" {
		if renewal, err = strconv.ParseBool(v); err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, "invalid_form", "renewal must be a boolean")
			return
		}
	}

	ctx := r.Context()
	path, err := h.saveUpload(file, header.Filename)
	if err != nil {
		h.logger().ErrorContext(ctx, "save upload", "file_name", header.Filename, "error", err)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: "save_failed", Err: errors.New("could not store upload")})
		return
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	req := model.AnalysisRequest{
		PolicyID:       "direct_" + token,
		ClientID:       "direct_" + strings.ToLower(strings.ReplaceAll(clientName, " ", "_")),
		ClientName:     clientName,
		ClientIndustry: r.FormValue("client_industry"),
		PolicyType:     r.FormValue("policy_type"),
		Renewal:        renewal,
		FileName:       header.Filename,
		LocalFilePath:  path,
	}
	id, err := h.Analyses.Enqueue(ctx, req)
	if err != nil {
		// The job never took ownership of the upload.
		_ = os.Remove(path)
		writeEnqueueError(w, err)
		return
	}

	h.logger().InfoContext(ctx, "direct upload received",
		"job_id", id,
		"file_name", header.Filename,
		"client_name", clientName,
		"bytes", header.Size)
	WriteJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"analysis_id": id,
		"message":     "Analysis started. Use GET /analysis/{analysis_id}/status to check progress.",
		"status_url":  "/analysis/" + id + "/status",
	})
}

func (h *AnalysisHandlers) saveUpload(src io.Reader, name string) (string, error) {
	dir := h.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	base := strings.ReplaceAll(filepath.Base(name), "*", "_")
	f, err := os.CreateTemp(dir, "upload_*_"+base)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		return "", errors.Join(fmt.Errorf("write upload: %w", err), f.Close(), os.Remove(f.Name()))
	}
	if err := f.Close(); err != nil {
		return "", errors.Join(fmt.Errorf("close upload: %w", err), os.Remove(f.Name()))
	}
	return f.Name(), nil
}

// Status returns the job snapshot. With ?wait=N it holds the request until the
// job changes or N seconds pass, capped by MaxStatusWait.
func (h *AnalysisHandlers) Status(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wait := parseIntQuery(r, "wait", 0)

	var (
		unsub   func()
		changed <-chan struct{}
	)
	if wait > 0 && h.Notifier != nil {
		// Subscribe before the first read so a change in between is not missed.
		unsub, changed = h.Notifier.Subscribe(id)
		defer unsub()
	}

	j, ok := h.Analyses.GetStatus(id)
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, "not_found", "Analysis not found")
		return
	}
	if changed == nil || j.Status.Terminal() {
		WriteJSON(w, http.StatusOK, j)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.waitFor(wait))
	defer cancel()
	select {
	case <-ctx.Done():
	case <-changed:
	}
	if latest, ok := h.Analyses.GetStatus(id); ok {
		j = latest
	}
	WriteJSON(w, http.StatusOK, j)
}

func (h *AnalysisHandlers) waitFor(seconds int) time.Duration {
	limit := h.MaxStatusWait
	if limit <= 0 {
		limit = defaultMaxStatusWait
	}
	return min(time.Duration(seconds)*time.Second, limit)
}

// Report downloads the rendered report of a completed job.
func (h *AnalysisHandlers) Report(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	j, ok := h.Analyses.GetStatus(id)
	if !ok {
		WriteErrorMessage(w, http.StatusNotFound, "not_found", "Analysis not found")
		return
	}
	if j.Status != model.JobStatusCompleted || j.Result == nil {
		WriteErrorMessage(w, http.StatusBadRequest, "not_complete",
			"Analysis not complete. Current status: "+string(j.Status))
		return
	}

	res := j.Result
	if res.ReportPath != "" {
		if info, err := os.Stat(res.ReportPath); err == nil && info.Mode().IsRegular() {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(res.ReportPath)))
			http.ServeFile(w, r, res.ReportPath)
			return
		}
	}
	if res.ReportStoragePath != "" && h.Reports != nil {
		link, err := h.Reports.Presign(r.Context(), res.ReportStoragePath)
		if err != nil {
			h.logger().ErrorContext(r.Context(), "presign report", "job_id", id, "error", err)
			WriteErrorMessage(w, http.StatusBadGateway, "storage_unavailable", "Report storage unavailable")
			return
		}
		http.Redirect(w, r, link, http.StatusFound)
		return
	}
	WriteErrorMessage(w, http.StatusNotFound, "not_found", "Report file not found")
}

type analysisSummary struct {
	AnalysisID string          `json:"analysis_id"`
	Status     model.JobStatus `json:"status"`
	ClientName string          `json:"client_name"`
	StartedAt  time.Time       `json:"started_at"`
}

// List returns a summary of every known job.
func (h *AnalysisHandlers) List(w http.ResponseWriter, _ *http.Request) {
	jobs := h.Analyses.List()
	out := make([]analysisSummary, 0, len(jobs))
	for _, j := range jobs {
		name := j.ClientName
		if j.Result != nil && j.Result.ClientName != "" {
			name = j.Result.ClientName
		}
		if name == "" {
			name = unknownClientName
		}
		out = append(out, analysisSummary{
			AnalysisID: j.ID,
			Status:     j.Status,
			ClientName: name,
			StartedAt:  j.StartedAt,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"analyses": out})
}
