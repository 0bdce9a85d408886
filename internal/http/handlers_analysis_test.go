package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/policy-analysis-api/internal/domain/job"
	"github.com/target/policy-analysis-api/internal/domain/model"
)

func multipartUpload(t *testing.T, fileName string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = fw.Write([]byte("%PDF-1.4 test"))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analysis/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	t.Run("pdf is saved and queued", func(t *testing.T) {
		dir := t.TempDir()
		analyses := newFakeAnalyses()
		h := &AnalysisHandlers{Analyses: analyses, TempDir: dir}
		rec := httptest.NewRecorder()

		h.Upload(rec, multipartUpload(t, "Policy.PDF", map[string]string{
			"client_name":     "Acme Corp",
			"client_industry": "Retail",
			"renewal":         "true",
		}))

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "/analysis/analysis_000000000001/status", resp["status_url"])

		reqs := analyses.requests()
		require.Len(t, reqs, 1)
		got := reqs[0]
		assert.Equal(t, "direct_acme_corp", got.ClientID)
		assert.Contains(t, got.PolicyID, "direct_")
		assert.True(t, got.Renewal)
		assert.Empty(t, got.FileURL)
		assert.Equal(t, dir, filepath.Dir(got.LocalFilePath))

		b, err := os.ReadFile(got.LocalFilePath)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 test", string(b))
	})

	t.Run("non-pdf rejected", func(t *testing.T) {
		dir := t.TempDir()
		analyses := newFakeAnalyses()
		h := &AnalysisHandlers{Analyses: analyses, TempDir: dir}
		rec := httptest.NewRecorder()

		h.Upload(rec, multipartUpload(t, "policy.docx", map[string]string{"client_name": "Acme"}))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Only PDF files are accepted")
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("missing file and client name", func(t *testing.T) {
		h := &AnalysisHandlers{Analyses: newFakeAnalyses(), TempDir: t.TempDir()}

		rec := httptest.NewRecorder()
		h.Upload(rec, multipartUpload(t, "", map[string]string{"client_name": "Acme"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = httptest.NewRecorder()
		h.Upload(rec, multipartUpload(t, "p.pdf", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("failed enqueue removes upload", func(t *testing.T) {
		dir := t.TempDir()
		analyses := newFakeAnalyses()
		analyses.err = errors.New("boom")
		h := &AnalysisHandlers{Analyses: analyses, TempDir: dir}
		rec := httptest.NewRecorder()

		h.Upload(rec, multipartUpload(t, "p.pdf", map[string]string{"client_name": "Acme"}))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("oversized body", func(t *testing.T) {
		h := &AnalysisHandlers{Analyses: newFakeAnalyses(), TempDir: t.TempDir(), MaxUploadBytes: 64}
		rec := httptest.NewRecorder()
		h.Upload(rec, multipartUpload(t, "p.pdf", map[string]string{"client_name": "Acme Corporation International"}))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func serve(h *AnalysisHandlers, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /analysis/{id}/status", h.Status)
	mux.HandleFunc("GET /analysis/{id}/report", h.Report)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	started := time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC)
	analyses := newFakeAnalyses(model.Job{
		ID: "analysis_1", Status: model.JobStatusAnalyzing, Progress: model.ProgressAnalyzing, StartedAt: started,
	})
	h := &AnalysisHandlers{Analyses: analyses}

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/analysis/analysis_1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.JobStatusAnalyzing, got.Status)
	assert.Equal(t, model.ProgressAnalyzing, got.Progress)
	assert.Nil(t, got.CompletedAt)

	again := serve(h, httptest.NewRequest(http.MethodGet, "/analysis/analysis_1/status", nil))
	assert.Equal(t, rec.Body.String(), again.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/analysis/analysis_missing/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatus_WaitsForChange(t *testing.T) {
	analyses := newFakeAnalyses(model.Job{ID: "analysis_1", Status: model.JobStatusAnalyzing})
	notifier := job.NewNotifier()
	h := &AnalysisHandlers{Analyses: analyses, Notifier: notifier, MaxStatusWait: 5 * time.Second}

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		done <- serve(h, httptest.NewRequest(http.MethodGet, "/analysis/analysis_1/status?wait=5", nil))
	}()

	// Keep signalling until the poller picks the change up.
	analyses.set(model.Job{ID: "analysis_1", Status: model.JobStatusGenerating})
	var rec *httptest.ResponseRecorder
	require.Eventually(t, func() bool {
		notifier.Notify("analysis_1")
		select {
		case rec = <-done:
			return true
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	var got model.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.JobStatusGenerating, got.Status)
}

func TestStatus_WaitTimesOut(t *testing.T) {
	analyses := newFakeAnalyses(model.Job{ID: "analysis_1", Status: model.JobStatusAnalyzing})
	h := &AnalysisHandlers{Analyses: analyses, Notifier: job.NewNotifier(), MaxStatusWait: 50 * time.Millisecond}

	start := time.Now()
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/analysis/analysis_1/status?wait=30", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type fakeLinker struct {
	url string
	err error
}

func (f fakeLinker) Presign(context.Context, string) (string, error) { return f.url, f.err }

func TestReport(t *testing.T) {
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "analysis_1_Acme_Analysis.html")
	require.NoError(t, os.WriteFile(reportPath, []byte("<html>report</html>"), 0o600))

	analyses := newFakeAnalyses(
		model.Job{ID: "analysis_1", Status: model.JobStatusCompleted, Result: &model.AnalysisResult{ReportPath: reportPath}},
		model.Job{ID: "analysis_2", Status: model.JobStatusAnalyzing},
		model.Job{ID: "analysis_3", Status: model.JobStatusCompleted, Result: &model.AnalysisResult{
			ReportPath:        filepath.Join(dir, "gone.html"),
			ReportStoragePath: "default/c/reports/analysis_3_Acme_Analysis.html",
		}},
		model.Job{ID: "analysis_4", Status: model.JobStatusCompleted, Result: &model.AnalysisResult{}},
	)

	t.Run("local file", func(t *testing.T) {
		rec := serve(&AnalysisHandlers{Analyses: analyses}, httptest.NewRequest(http.MethodGet, "/analysis/analysis_1/report", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "<html>report</html>", rec.Body.String())
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "analysis_1_Acme_Analysis.html")
	})

	t.Run("not complete", func(t *testing.T) {
		rec := serve(&AnalysisHandlers{Analyses: analyses}, httptest.NewRequest(http.MethodGet, "/analysis/analysis_2/report", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Current status: analyzing")
	})

	t.Run("falls back to presigned link", func(t *testing.T) {
		h := &AnalysisHandlers{Analyses: analyses, Reports: fakeLinker{url: "https://s3.example.com/signed"}}
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/analysis/analysis_3/report", nil))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://s3.example.com/signed", rec.Header().Get("Location"))
	})

	t.Run("presign failure", func(t *testing.T) {
		h := &AnalysisHandlers{Analyses: analyses, Reports: fakeLinker{err: errors.New("denied")}}
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/analysis/analysis_3/report", nil))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("no report", func(t *testing.T) {
		h := &AnalysisHandlers{Analyses: analyses}
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/analysis/analysis_4/report", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = serve(h, httptest.NewRequest(http.MethodGet, "/analysis/analysis_missing/report", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestList(t *testing.T) {
	analyses := newFakeAnalyses(
		model.Job{ID: "analysis_1", Status: model.JobStatusCompleted, Result: &model.AnalysisResult{ClientName: "Acme"}},
		model.Job{ID: "analysis_2", Status: model.JobStatusStarted, ClientName: "Globex"},
		model.Job{ID: "analysis_3", Status: model.JobStatusFailed},
	)
	h := &AnalysisHandlers{Analyses: analyses}
	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/analysis/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Analyses []analysisSummary `json:"analyses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Analyses, 3)
	assert.Equal(t, "Acme", resp.Analyses[0].ClientName)
	assert.Equal(t, "Globex", resp.Analyses[1].ClientName)
	assert.Equal(t, "Unknown", resp.Analyses[2].ClientName)
}
