package data

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/policy-analysis-api/internal/domain/model"
	"github.com/target/policy-analysis-api/internal/mocks"
)

func TestNewMultiBackend_Collapses(t *testing.T) {
	ctrl := gomock.NewController(t)
	single := mocks.NewMockPersistenceBackend(ctrl)

	assert.IsType(t, NoopBackend{}, NewMultiBackend())
	assert.IsType(t, NoopBackend{}, NewMultiBackend(nil, nil))
	assert.Same(t, single, NewMultiBackend(nil, single))
}

func TestMultiBackend_FansOutAndJoinsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockPersistenceBackend(ctrl)
	second := mocks.NewMockPersistenceBackend(ctrl)
	backend := NewMultiBackend(first, second)

	ctx := context.Background()
	fields := model.StatusFields{AnalysisID: "analysis_1", Status: model.JobStatusAnalyzing, UpdatedAt: time.Now()}
	pgErr := errors.New("postgres down")

	first.EXPECT().UpsertStatus(ctx, "analysis_1", fields).Return(pgErr)
	second.EXPECT().UpsertStatus(ctx, "analysis_1", fields).Return(nil)

	err := backend.UpsertStatus(ctx, "analysis_1", fields)
	require.Error(t, err)
	assert.ErrorIs(t, err, pgErr)

	result := &model.AnalysisResult{AnalysisID: "analysis_1"}
	first.EXPECT().UpsertResult(ctx, "analysis_1", result).Return(nil)
	second.EXPECT().UpsertResult(ctx, "analysis_1", result).Return(nil)
	require.NoError(t, backend.UpsertResult(ctx, "analysis_1", result))
}

func TestNoopBackend(t *testing.T) {
	var b NoopBackend
	require.NoError(t, b.UpsertStatus(context.Background(), "x", model.StatusFields{}))
	require.NoError(t, b.UpsertResult(context.Background(), "x", nil))
}
