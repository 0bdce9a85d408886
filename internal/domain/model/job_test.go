package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []JobStatus{
	JobStatusStarted,
	JobStatusExtracting,
	JobStatusAnalyzing,
	JobStatusRetrying,
	JobStatusGenerating,
	JobStatusCompleted,
	JobStatusFailed,
}

type edge struct{ from, to JobStatus }

func TestJobStatus_CanTransition(t *testing.T) {
	legal := map[edge]bool{
		{JobStatusStarted, JobStatusExtracting}:   true,
		{JobStatusStarted, JobStatusFailed}:       true,
		{JobStatusExtracting, JobStatusAnalyzing}: true,
		{JobStatusExtracting, JobStatusFailed}:    true,
		{JobStatusAnalyzing, JobStatusAnalyzing}:  true,
		{JobStatusAnalyzing, JobStatusRetrying}:   true,
		{JobStatusAnalyzing, JobStatusGenerating}: true,
		{JobStatusAnalyzing, JobStatusFailed}:     true,
		{JobStatusRetrying, JobStatusAnalyzing}:   true,
		{JobStatusRetrying, JobStatusFailed}:      true,
		{JobStatusGenerating, JobStatusCompleted}: true,
		{JobStatusGenerating, JobStatusFailed}:    true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := legal[edge{from, to}]
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestJobStatus_TerminalStatesAreFinal(t *testing.T) {
	for _, from := range []JobStatus{JobStatusCompleted, JobStatusFailed} {
		assert.True(t, from.Terminal())
		for _, to := range allStatuses {
			assert.False(t, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
	for _, s := range []JobStatus{JobStatusStarted, JobStatusExtracting, JobStatusAnalyzing, JobStatusRetrying, JobStatusGenerating} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestJobStatus_NothingSkipsExtracting(t *testing.T) {
	for _, to := range []JobStatus{JobStatusAnalyzing, JobStatusRetrying, JobStatusGenerating, JobStatusCompleted} {
		assert.False(t, JobStatusStarted.CanTransition(to), "started -> %s", to)
	}
}

func TestJobStatus_UnmarshalText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    JobStatus
		wantErr bool
	}{
		{name: "lowercase", input: "completed", want: JobStatusCompleted},
		{name: "mixed case and spaces", input: "  Retrying ", want: JobStatusRetrying},
		{name: "unknown", input: "pending", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s JobStatus
			err := s.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				assert.Empty(t, s)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}
}

func TestJob_CloneIsDeep(t *testing.T) {
	done := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := "boom"
	score := 7.5
	orig := Job{
		ID:          "job-1",
		Status:      JobStatusCompleted,
		CompletedAt: &done,
		Error:       &msg,
		Result: &AnalysisResult{
			AnalysisID:   "job-1",
			OverallScore: &score,
			AnalysisData: map[string]any{
				"summary": map[string]any{"level": "Managed"},
				"gaps":    []any{"mfa"},
			},
		},
	}

	clone := orig.Clone()
	*clone.CompletedAt = done.Add(time.Hour)
	*clone.Error = "changed"
	*clone.Result.OverallScore = 1
	clone.Result.Recommendation = "changed"
	clone.Result.AnalysisData["extra"] = true
	clone.Result.AnalysisData["summary"].(map[string]any)["level"] = "Initial"
	clone.Result.AnalysisData["gaps"].([]any)[0] = "edr"

	assert.Equal(t, done, *orig.CompletedAt)
	assert.Equal(t, "boom", *orig.Error)
	assert.Equal(t, 7.5, *orig.Result.OverallScore)
	assert.Empty(t, orig.Result.Recommendation)
	assert.NotContains(t, orig.Result.AnalysisData, "extra")
	assert.Equal(t, "Managed", orig.Result.AnalysisData["summary"].(map[string]any)["level"])
	assert.Equal(t, []any{"mfa"}, orig.Result.AnalysisData["gaps"])
}

func TestJob_CloneNilFields(t *testing.T) {
	clone := Job{ID: "job-2", Status: JobStatusStarted}.Clone()
	assert.Nil(t, clone.CompletedAt)
	assert.Nil(t, clone.Error)
	assert.Nil(t, clone.Result)
}

func envelopeFields(t *testing.T, env CallbackEnvelope) map[string]any {
	t.Helper()
	b, err := env.Marshal()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestSuccessEnvelope_JSONShape(t *testing.T) {
	done := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	score := 6.2
	fields := envelopeFields(t, SuccessEnvelope(&AnalysisResult{
		AnalysisID:            "job-1",
		PolicyID:              "pol-1",
		ClientID:              "cli-1",
		ClientName:            "Acme",
		Status:                JobStatusCompleted,
		OverallScore:          &score,
		Recommendation:        "Renew with conditions",
		ReportPath:            "/reports/job-1_report.html",
		ReportStoragePath:     "default/cli-1/reports/job-1_Acme_Analysis.html",
		AnalysisData:          map[string]any{"k": "v"},
		ProcessingTimeSeconds: 12.34,
		CompletedAt:           done,
	}))

	assert.Equal(t, "job-1", fields["analysis_id"])
	assert.Equal(t, "pol-1", fields["policy_id"])
	assert.Equal(t, "cli-1", fields["client_id"])
	assert.Equal(t, "Acme", fields["client_name"])
	assert.Equal(t, "completed", fields["status"])
	assert.InDelta(t, 6.2, fields["overall_score"], 1e-9)
	assert.Equal(t, "Renew with conditions", fields["recommendation"])
	assert.Equal(t, "/reports/job-1_report.html", fields["report_path"])
	assert.Equal(t, "default/cli-1/reports/job-1_Acme_Analysis.html", fields["report_storage_path"])
	assert.Equal(t, map[string]any{"k": "v"}, fields["analysis_data"])
	assert.InDelta(t, 12.34, fields["processing_time_seconds"], 1e-9)
	assert.Equal(t, "2026-03-01T12:00:00Z", fields["completed_at"])
	assert.NotContains(t, fields, "error_message")
}

func TestFailureEnvelope_JSONShape(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	req := AnalysisRequest{PolicyID: "pol-1", ClientID: "cli-1", ClientName: "Acme"}
	fields := envelopeFields(t, FailureEnvelope("job-1", req, "PDF extraction failed: bad header", at))

	assert.Equal(t, "job-1", fields["analysis_id"])
	assert.Equal(t, "pol-1", fields["policy_id"])
	assert.Equal(t, "cli-1", fields["client_id"])
	assert.Equal(t, "failed", fields["status"])
	assert.Equal(t, "PDF extraction failed: bad header", fields["error_message"])
	assert.Equal(t, "2026-03-01T12:00:00Z", fields["completed_at"])

	for _, key := range []string{
		"overall_score", "recommendation", "report_path",
		"report_storage_path", "analysis_data", "processing_time_seconds",
	} {
		assert.NotContains(t, fields, key)
	}
}

func TestCallbackEnvelope_MarshalIsStable(t *testing.T) {
	env := FailureEnvelope("job-1", AnalysisRequest{PolicyID: "pol-1"}, "x", time.Unix(0, 0).UTC())
	a, err := env.Marshal()
	require.NoError(t, err)
	b, err := env.Marshal()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAnalysisRequest_NormalizeAndSource(t *testing.T) {
	req := AnalysisRequest{ClientName: "  ", FileURL: "https://files.test/p.pdf"}
	req.Normalize()
	assert.Equal(t, DefaultClientName, req.ClientName)
	assert.Equal(t, DefaultClientIndustry, req.ClientIndustry)
	assert.Equal(t, DefaultPolicyType, req.PolicyType)
	assert.Equal(t, Source{URL: "https://files.test/p.pdf"}, req.Source())

	req.LocalFilePath = "/tmp/upload.pdf"
	assert.Equal(t, Source{Path: "/tmp/upload.pdf"}, req.Source())
	assert.False(t, req.Source().Empty())
	assert.True(t, Source{}.Empty())
}
