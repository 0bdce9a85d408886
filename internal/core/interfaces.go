package core

import (
	"context"
	"time"

	"github.com/target/policy-analysis-api/internal/domain/model"
)

// This file contains the ports between the orchestrator and its collaborators.
// Service implementations depend on these interfaces, never on concrete adapters.

// JobRegistry is the process-local store of job state. Exactly one task writes a
// given job; any number of readers may poll it concurrently.
type JobRegistry interface {
	// Create inserts a job in the started state. It fails if the id already exists.
	Create(job model.Job) error
	// Update moves a job to status with a new progress message. Unknown or terminal
	// jobs are ignored; it never fails.
	Update(id string, status model.JobStatus, progress string)
	// IncrementAttempts records one more analyzer attempt.
	IncrementAttempts(id string)
	// Complete marks the job completed with result.
	Complete(id string, result *model.AnalysisResult)
	// Fail marks the job failed with msg.
	Fail(id, msg string)
	// Get returns a snapshot of the job.
	Get(id string) (model.Job, bool)
	// List returns snapshots of every known job ordered by start time.
	List() []model.Job
}

// Extractor turns a source document into plain text.
type Extractor interface {
	Extract(ctx context.Context, src model.Source) (*model.Extraction, error)
}

// Analyzer produces structured analysis data from document text. Failures should
// be tagged with job.Retryable or job.Fatal.
type Analyzer interface {
	Analyze(ctx context.Context, text string, in model.AnalysisContext) (*model.Analysis, error)
}

// Renderer writes a report artifact for analysis data and returns its local path.
type Renderer interface {
	Render(ctx context.Context, data map[string]any, in model.RenderInput) (string, error)
}

// PersistenceBackend durably mirrors job status and results.
type PersistenceBackend interface {
	UpsertStatus(ctx context.Context, jobID string, fields model.StatusFields) error
	UpsertResult(ctx context.Context, jobID string, result *model.AnalysisResult) error
}

// ArtifactStore accepts a local artifact for durable storage and returns its storage key.
type ArtifactStore interface {
	Store(ctx context.Context, localPath, key string) (string, error)
}

// CallbackSender delivers a callback envelope, applying its own retry budget.
type CallbackSender interface {
	Deliver(ctx context.Context, url string, env model.CallbackEnvelope)
}

// SideEffects accepts best-effort work the orchestrator must never block on.
type SideEffects interface {
	MirrorStatus(jobID string, fields model.StatusFields)
	MirrorResult(jobID string, result *model.AnalysisResult)
	DeliverCallback(url string, env model.CallbackEnvelope)
	NotifyFailure(notice model.FailureNotice)
}

// Sleeper waits for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f(ctx, d).
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper sleeps using a real timer.
type TimerSleeper struct{}

// Sleep blocks for d unless ctx is cancelled first.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
