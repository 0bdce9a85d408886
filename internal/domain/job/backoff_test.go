package job

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnalysisPolicy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		policy, err := NewAnalysisPolicy(DefaultAnalysisDelays(), DefaultAnalysisMaxRetries)
		require.NoError(t, err)
		assert.Equal(t, 2, policy.MaxRetries())
		assert.Equal(t, 3, policy.MaxAttempts())
	})

	t.Run("empty schedule", func(t *testing.T) {
		policy, err := NewAnalysisPolicy(nil, 2)
		require.ErrorIs(t, err, ErrEmptySchedule)
		assert.Nil(t, policy)
	})
}

func TestBackoffPolicy_Decide(t *testing.T) {
	policy, err := NewAnalysisPolicy(DefaultAnalysisDelays(), DefaultAnalysisMaxRetries)
	require.NoError(t, err)

	rateLimited := Retryable(ReasonRateLimited, errors.New("status 429"))

	t.Run("first retry uses first delay", func(t *testing.T) {
		d := policy.Decide(rateLimited, 0)
		assert.True(t, d.Retry)
		assert.Equal(t, 30*time.Second, d.Delay)
		assert.Equal(t, KindRetryable, d.Kind)
	})

	t.Run("second retry uses second delay", func(t *testing.T) {
		d := policy.Decide(rateLimited, 1)
		assert.True(t, d.Retry)
		assert.Equal(t, 60*time.Second, d.Delay)
	})

	t.Run("budget exhausted", func(t *testing.T) {
		d := policy.Decide(rateLimited, 2)
		assert.False(t, d.Retry)
		assert.Equal(t, KindRetryable, d.Kind)
	})

	t.Run("fatal is never retried", func(t *testing.T) {
		d := policy.Decide(Fatal(ReasonInvalidInput, errors.New("bad request")), 0)
		assert.False(t, d.Retry)
		assert.Equal(t, KindFatal, d.Kind)
	})

	t.Run("untagged error is fatal", func(t *testing.T) {
		d := policy.Decide(errors.New("boom"), 0)
		assert.False(t, d.Retry)
		assert.Equal(t, KindFatal, d.Kind)
	})

	t.Run("wrapped tag survives", func(t *testing.T) {
		d := policy.Decide(fmt.Errorf("analyze: %w", rateLimited), 0)
		assert.True(t, d.Retry)
	})

	t.Run("deadline exceeded is retryable", func(t *testing.T) {
		d := policy.Decide(fmt.Errorf("call: %w", context.DeadlineExceeded), 0)
		assert.True(t, d.Retry)
	})
}

func TestBackoffPolicy_ShortScheduleRepeatsLastDelay(t *testing.T) {
	policy, err := NewAnalysisPolicy([]time.Duration{time.Second}, 3)
	require.NoError(t, err)

	err = Retryable(ReasonTimeout, nil)
	assert.Equal(t, time.Second, policy.Decide(err, 0).Delay)
	assert.Equal(t, time.Second, policy.Decide(err, 2).Delay)
	assert.False(t, policy.Decide(err, 3).Retry)
}

func TestConstantPolicy_RetriesEverything(t *testing.T) {
	policy := NewConstantPolicy(DefaultCallbackDelay, DefaultCallbackMaxRetries)

	d := policy.Decide(errors.New("status 500"), 0)
	assert.True(t, d.Retry)
	assert.Equal(t, 5*time.Second, d.Delay)

	d = policy.Decide(Fatal(ReasonInvalidInput, nil), 1)
	assert.True(t, d.Retry, "callback schedule does not classify")

	assert.False(t, policy.Decide(errors.New("x"), 2).Retry)
}

func TestStageError(t *testing.T) {
	base := errors.New("overloaded")
	err := Retryable(ReasonOverloaded, base)
	assert.Equal(t, "overloaded", err.Error())
	require.ErrorIs(t, err, base)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(nil))

	empty := Fatal(ReasonInvalidInput, nil)
	assert.Equal(t, ReasonInvalidInput, empty.Error())
}
