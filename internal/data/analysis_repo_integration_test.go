package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/policy-analysis-api/internal/domain/model"
	apperrors "github.com/target/policy-analysis-api/internal/errors"
	"github.com/target/policy-analysis-api/internal/testutil"
)

func TestAnalysisRepo_StatusLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := testutil.SetupAnalysisDB(t)
	ctx := context.Background()
	base := testutil.TestTime()
	repo := NewAnalysisRepoWithTimeProvider(db, NewFixedTimeProvider(base))

	require.NoError(t, repo.UpsertStatus(ctx, "analysis_1", model.StatusFields{
		PolicyID: "pol-1", Status: model.JobStatusStarted, Progress: model.ProgressInitializing, UpdatedAt: base,
	}))
	require.NoError(t, repo.UpsertStatus(ctx, "analysis_1", model.StatusFields{
		Status: model.JobStatusAnalyzing, Progress: model.ProgressAnalyzing, Attempts: 1, UpdatedAt: base.Add(2 * time.Second),
	}))

	// A late write of an older state is ignored.
	require.NoError(t, repo.UpsertStatus(ctx, "analysis_1", model.StatusFields{
		Status: model.JobStatusExtracting, Progress: model.ProgressExtracting, UpdatedAt: base.Add(time.Second),
	}))

	got, err := repo.GetStatus(ctx, "analysis_1")
	require.NoError(t, err)
	assert.Equal(t, string(model.JobStatusAnalyzing), got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.PolicyID)
	assert.Equal(t, "pol-1", *got.PolicyID)

	done := base.Add(time.Minute)
	require.NoError(t, repo.UpsertStatus(ctx, "analysis_1", model.StatusFields{
		Status: model.JobStatusFailed, Progress: model.ProgressFailed, Attempts: 3,
		Error: "Analysis failed: boom", UpdatedAt: done, CompletedAt: testutil.TimePtr(done),
	}))

	// Terminal rows are frozen.
	require.NoError(t, repo.UpsertStatus(ctx, "analysis_1", model.StatusFields{
		Status: model.JobStatusAnalyzing, UpdatedAt: done.Add(time.Minute),
	}))

	got, err = repo.GetStatus(ctx, "analysis_1")
	require.NoError(t, err)
	assert.Equal(t, string(model.JobStatusFailed), got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Analysis failed: boom", *got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)

	_, err = repo.GetStatus(ctx, "analysis_missing")
	require.ErrorIs(t, err, ErrAnalysisNotFound)
}

func TestAnalysisRepo_Result(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	db := testutil.SetupAnalysisDB(t)
	ctx := context.Background()
	repo := NewAnalysisRepo(db)
	score := 6.9
	completed := time.Date(2025, 3, 7, 12, 5, 0, 0, time.UTC)

	in := &model.AnalysisResult{
		AnalysisID:            "analysis_2",
		PolicyID:              "pol-2",
		ClientID:              "client-2",
		ClientName:            "Globex",
		OverallScore:          &score,
		Recommendation:        "BIND WITH CONDITIONS",
		ReportStoragePath:     "default/client-2/reports/analysis_2_Globex_Analysis.html",
		AnalysisData:          map[string]any{"client_company": "Globex"},
		TokensUsed:            3500,
		ProcessingTimeSeconds: 42.5,
		CompletedAt:           completed,
	}
	require.NoError(t, repo.UpsertResult(ctx, "analysis_2", in))

	in.Recommendation = "BIND"
	require.NoError(t, repo.UpsertResult(ctx, "analysis_2", in))

	got, err := repo.GetResult(ctx, "analysis_2")
	require.NoError(t, err)
	assert.Equal(t, "BIND", got.Recommendation)
	assert.Equal(t, "Globex", got.AnalysisData["client_company"])
	assert.Equal(t, 3500, got.TokensUsed)
	require.NotNil(t, got.OverallScore)
	assert.InDelta(t, 6.9, *got.OverallScore, 0.0001)
	assert.True(t, completed.Equal(got.CompletedAt))
}

func TestAnalysisRepo_Validation(t *testing.T) {
	repo := NewAnalysisRepo(nil)
	ctx := context.Background()

	require.ErrorIs(t, repo.UpsertStatus(ctx, "", model.StatusFields{}), ErrAnalysisIDRequired)
	err := repo.UpsertStatus(ctx, "analysis_3", model.StatusFields{Status: "bogus"})
	assert.True(t, apperrors.IsValidation(err))
	require.ErrorIs(t, repo.UpsertResult(ctx, "analysis_3", nil), ErrResultRequired)
}
