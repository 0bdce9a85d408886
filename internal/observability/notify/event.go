// Package notify defines operator notifications for failed analyses.
package notify

import (
	"context"
	"time"
)

// AnalysisFailurePayload captures what operators need to triage a failed analysis.
type AnalysisFailurePayload struct {
	AnalysisID string
	PolicyID   string
	ClientName string
	Stage      string
	Attempts   int
	Error      string
	ErrorClass string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming failure notifications.
type Sink interface {
	SendAnalysisFailure(ctx context.Context, payload AnalysisFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload AnalysisFailurePayload) error

// SendAnalysisFailure implements the Sink interface.
func (f SinkFunc) SendAnalysisFailure(ctx context.Context, payload AnalysisFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
