package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/target/policy-analysis-api/internal/domain/job"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"tagged retryable", fmt.Errorf("analyze: %w", job.Retryable(job.ReasonRateLimited, nil)), "retryable_rate_limited"},
		{"tagged fatal without reason", &job.StageError{Kind: job.KindFatal, Err: goerrors.New("x")}, "fatal"},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), "deadline_exceeded"},
		{"canceled", context.Canceled, "canceled"},
		{"path error", &os.PathError{Op: "open", Path: "/x", Err: goerrors.New("nope")}, "errors_errorstring"},
		{"plain", goerrors.New("boom"), "errors_errorstring"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
