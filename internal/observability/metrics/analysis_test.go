package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/policy-analysis-api/internal/domain/job"
	"github.com/target/policy-analysis-api/internal/observability/statsd"
)

func TestEmitTransition(t *testing.T) {
	rec := &statsd.Recorder{}

	EmitTransition(rec, TransitionMetric{
		From:     "analyzing",
		To:       "failed",
		Result:   ResultError,
		Duration: 2 * time.Second,
		Err:      job.Fatal(job.ReasonInvalidInput, errors.New("bad")),
	})

	counts := rec.Named("analysis.transition")
	require.Len(t, counts, 1)
	assert.Equal(t, "failed", counts[0].Tags["to"])
	assert.Equal(t, "fatal_invalid_input", counts[0].Tags["error_class"])

	timings := rec.Named("analysis.duration")
	require.Len(t, timings, 1)
	assert.InDelta(t, 2000, timings[0].Value, 0.001)
}

func TestEmitTransition_SuccessHasNoErrorClass(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitTransition(rec, TransitionMetric{From: "started", To: "extracting", Result: ResultSuccess, Err: errors.New("ignored")})

	counts := rec.Named("analysis.transition")
	require.Len(t, counts, 1)
	_, ok := counts[0].Tags["error_class"]
	assert.False(t, ok)
	assert.Empty(t, rec.Named("analysis.duration"))
}

func TestEmitStageAndDelivery(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitStage(rec, StageMetric{Stage: "analyze", Attempt: 1, Result: ResultRetry, Duration: time.Millisecond,
		Err: job.Retryable(job.ReasonOverloaded, nil)})
	EmitDelivery(rec, DeliveryMetric{Kind: "callback", Result: ResultError, Attempts: 3, Err: errors.New("500")})

	stage := rec.Named("analysis.stage")
	require.Len(t, stage, 1)
	assert.Equal(t, "1", stage[0].Tags["attempt"])
	assert.Equal(t, "retryable_overloaded", stage[0].Tags["error_class"])

	attempts := rec.Named("delivery.attempts")
	require.Len(t, attempts, 1)
	assert.InDelta(t, 3, attempts[0].Value, 0)
}

func TestEmitNilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitTransition(nil, TransitionMetric{})
		EmitStage(nil, StageMetric{})
		EmitDelivery(nil, DeliveryMetric{})
	})
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "b"}
	cp := CloneTags(src)
	cp["a"] = "c"
	assert.Equal(t, "b", src["a"])
}
