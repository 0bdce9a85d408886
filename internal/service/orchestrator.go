package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/target/policy-analysis-api/internal/core"
	"github.com/target/policy-analysis-api/internal/domain/job"
	"github.com/target/policy-analysis-api/internal/domain/model"
	"github.com/target/policy-analysis-api/internal/observability/metrics"
	"github.com/target/policy-analysis-api/internal/observability/statsd"
)

var (
	// ErrNoSource is returned when a request carries neither a local file nor a URL.
	ErrNoSource = errors.New("no file path or URL provided")
	// ErrEmptyExtraction is returned when extraction succeeds but yields no text.
	ErrEmptyExtraction = errors.New("no text could be extracted")
	// ErrEmptyAnalysis is returned when the analyzer reports success without data.
	ErrEmptyAnalysis = errors.New("analysis returned no result")
	// ErrOrchestratorStopped is returned by Enqueue after Shutdown.
	ErrOrchestratorStopped = errors.New("orchestrator is shutting down")
)

const (
	stageExtract = "extract"
	stageAnalyze = "analyze"
	stageRender  = "render"
	stageStore   = "store"
)

// OrchestratorOptions groups dependencies for Orchestrator.
type OrchestratorOptions struct {
	Registry       core.JobRegistry   // Required: job status registry
	Extractor      core.Extractor     // Required: document text extraction
	Analyzer       core.Analyzer      // Required: analysis stage
	Renderer       core.Renderer      // Optional: report rendering; skipped when nil
	Artifacts      core.ArtifactStore // Optional: durable report hand-off
	SideEffects    core.SideEffects   // Optional: persistence mirror, callbacks, notifications
	Policy         *job.BackoffPolicy // Optional: analyzer retry policy (2 retries, 30s/60s)
	Sleeper        core.Sleeper       // Optional: retry delay implementation
	ReportsDir     string             // Optional: renderer output directory
	ExtractTimeout time.Duration      // Optional: bound on the extraction call
	AnalyzeTimeout time.Duration      // Optional: bound on each analyzer call
	NewID          func() string      // Optional: job id generator
	Clock          func() time.Time   // Optional: defaults to time.Now
	Metrics        statsd.Sink        // Optional: metrics sink
	Logger         *slog.Logger       // Optional: structured logger
}

// Orchestrator drives each analysis job through extract, analyze and render,
// reporting every transition to the registry.
type Orchestrator struct {
	registry       core.JobRegistry
	extractor      core.Extractor
	analyzer       core.Analyzer
	renderer       core.Renderer
	artifacts      core.ArtifactStore
	side           core.SideEffects
	policy         *job.BackoffPolicy
	sleeper        core.Sleeper
	reportsDir     string
	extractTimeout time.Duration
	analyzeTimeout time.Duration
	newID          func() string
	clock          func() time.Time
	metrics        statsd.Sink
	logger         *slog.Logger

	jobCtx    context.Context
	cancelJob context.CancelFunc
	mu        sync.Mutex
	stopped   bool
	inflight  sync.WaitGroup
	active    atomic.Int64
}

// NewOrchestrator constructs an Orchestrator. It panics if a required dependency is missing.
func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	if opts.Registry == nil {
		panic("Registry is required")
	}
	if opts.Extractor == nil {
		panic("Extractor is required")
	}
	if opts.Analyzer == nil {
		panic("Analyzer is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Policy
	if policy == nil {
		policy, _ = job.NewAnalysisPolicy(job.DefaultAnalysisDelays(), job.DefaultAnalysisMaxRetries)
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = core.TimerSleeper{}
	}
	side := opts.SideEffects
	if side == nil {
		side = noopSideEffects{}
	}
	newID := opts.NewID
	if newID == nil {
		newID = NewAnalysisID
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		registry:       opts.Registry,
		extractor:      opts.Extractor,
		analyzer:       opts.Analyzer,
		renderer:       opts.Renderer,
		artifacts:      opts.Artifacts,
		side:           side,
		policy:         policy,
		sleeper:        sleeper,
		reportsDir:     opts.ReportsDir,
		extractTimeout: opts.ExtractTimeout,
		analyzeTimeout: opts.AnalyzeTimeout,
		newID:          newID,
		clock:          clock,
		metrics:        opts.Metrics,
		logger:         logger.With("component", "orchestrator"),
		jobCtx:         ctx,
		cancelJob:      cancel,
	}
}

// NewAnalysisID returns an id of the form "analysis_" followed by 12 hex characters.
func NewAnalysisID() string {
	return "analysis_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Enqueue registers a job in the started state and runs it in the background.
// The job outlives ctx; only Shutdown stops it.
func (o *Orchestrator) Enqueue(ctx context.Context, req model.AnalysisRequest) (string, error) {
	req.Normalize()
	id := o.newID()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return "", ErrOrchestratorStopped
	}

	now := o.clock().UTC()
	if err := o.registry.Create(model.Job{
		ID:         id,
		PolicyID:   req.PolicyID,
		ClientName: req.ClientName,
		StartedAt:  now,
	}); err != nil {
		return "", fmt.Errorf("register job: %w", err)
	}
	o.side.MirrorStatus(id, model.StatusFields{
		AnalysisID: id,
		PolicyID:   req.PolicyID,
		Status:     model.JobStatusStarted,
		Progress:   model.ProgressInitializing,
		UpdatedAt:  now,
	})
	o.logger.InfoContext(ctx, "analysis enqueued",
		"job_id", id,
		"policy_id", req.PolicyID,
		"client_name", req.ClientName,
		"has_callback", req.CallbackURL != "")

	o.inflight.Add(1)
	o.active.Add(1)
	go func() {
		defer o.inflight.Done()
		defer o.active.Add(-1)
		o.Run(o.jobCtx, id, req)
	}()
	return id, nil
}

// GetStatus returns the current snapshot of a job.
func (o *Orchestrator) GetStatus(id string) (model.Job, bool) {
	return o.registry.Get(id)
}

// List returns every known job.
func (o *Orchestrator) List() []model.Job {
	return o.registry.List()
}

// Accepting reports whether Enqueue still takes new jobs.
func (o *Orchestrator) Accepting() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return !o.stopped
}

// InFlight returns the number of jobs that have not reached a terminal state.
func (o *Orchestrator) InFlight() int {
	return int(o.active.Load())
}

// Shutdown stops accepting jobs and waits for in-flight jobs. When ctx expires
// first, in-flight jobs are cancelled so they fail promptly, and Shutdown waits
// for them to record their terminal state.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.stopped = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancelJob()
		return nil
	case <-ctx.Done():
		o.cancelJob()
		<-done
		return ctx.Err()
	}
}

// Run executes one registered job to a terminal state. It never panics and
// always removes the job's transient input file.
func (o *Orchestrator) Run(ctx context.Context, id string, req model.AnalysisRequest) {
	r := &jobRun{o: o, id: id, req: req, status: model.JobStatusStarted, startedAt: o.clock()}
	if j, ok := o.registry.Get(id); ok {
		r.startedAt = j.StartedAt
	}

	defer r.cleanupInput()
	defer func() {
		if p := recover(); p != nil {
			o.logger.ErrorContext(ctx, "analysis panicked", "job_id", id, "panic", p)
			r.fail(ctx, &jobFailure{msg: fmt.Sprintf("Unexpected error: %v", p), err: fmt.Errorf("panic: %v", p)})
		}
	}()

	result, err := r.execute(ctx)
	if err != nil {
		r.fail(ctx, err)
		return
	}
	r.complete(ctx, result)
}

// jobFailure carries the user-facing message recorded on the job alongside its cause.
type jobFailure struct {
	msg string
	err error
}

func (f *jobFailure) Error() string { return f.msg }
func (f *jobFailure) Unwrap() error { return f.err }

func newFailure(prefix string, err error) *jobFailure {
	return &jobFailure{msg: prefix + ": " + err.Error(), err: err}
}

// jobRun is the per-job execution state. Only the job's goroutine touches it.
type jobRun struct {
	o         *Orchestrator
	id        string
	req       model.AnalysisRequest
	status    model.JobStatus
	attempts  int
	startedAt time.Time
}

func (r *jobRun) execute(ctx context.Context) (*model.AnalysisResult, error) {
	o := r.o

	r.transition(ctx, model.JobStatusExtracting, model.ProgressExtracting)
	extraction, err := r.extract(ctx)
	if err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "text extracted",
		"job_id", r.id, "chars", len(extraction.Text), "pages", extraction.PageCount)

	r.transition(ctx, model.JobStatusAnalyzing, model.ProgressAnalyzing)
	analysis, err := r.analyze(ctx, extraction.Text)
	if err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "analysis complete", "job_id", r.id, "tokens_used", analysis.TokensUsed)

	r.transition(ctx, model.JobStatusGenerating, model.ProgressGenerating)
	reportPath, storagePath := r.render(ctx, analysis.Data)

	completedAt := o.clock().UTC()
	return &model.AnalysisResult{
		AnalysisID:            r.id,
		PolicyID:              r.req.PolicyID,
		ClientID:              r.req.ClientID,
		ClientName:            r.req.ClientName,
		Status:                model.JobStatusCompleted,
		OverallScore:          analysis.Score,
		Recommendation:        analysis.Recommendation,
		ReportPath:            reportPath,
		ReportStoragePath:     storagePath,
		AnalysisData:          analysis.Data,
		TokensUsed:            analysis.TokensUsed,
		CompletedAt:           completedAt,
		ProcessingTimeSeconds: roundSeconds(completedAt.Sub(r.startedAt)),
	}, nil
}

func (r *jobRun) extract(ctx context.Context) (*model.Extraction, error) {
	src := r.req.Source()
	if src.Empty() {
		return nil, &jobFailure{msg: "No file path or URL provided", err: job.Fatal(job.ReasonInvalidInput, ErrNoSource)}
	}

	ctx, cancel := withOptionalTimeout(ctx, r.o.extractTimeout)
	defer cancel()

	start := time.Now()
	extraction, err := r.o.extractor.Extract(ctx, src)
	if err == nil && (extraction == nil || strings.TrimSpace(extraction.Text) == "") {
		err = ErrEmptyExtraction
	}
	r.stageMetric(stageExtract, 0, start, err)
	if err != nil {
		return nil, newFailure("PDF extraction failed", err)
	}
	return extraction, nil
}

func (r *jobRun) analyze(ctx context.Context, text string) (*model.Analysis, error) {
	o := r.o
	hints := model.AnalysisContext{
		ClientName:     r.req.ClientName,
		ClientIndustry: r.req.ClientIndustry,
		PolicyType:     r.req.PolicyType,
		Renewal:        r.req.Renewal,
		Carrier:        r.req.Carrier,
		FileName:       r.req.FileName,
		OnPhase: func(message string) {
			r.transition(ctx, model.JobStatusAnalyzing, message)
		},
	}

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			r.transition(ctx, model.JobStatusAnalyzing, model.ProgressAnalyzing)
		}
		r.attempts++
		o.registry.IncrementAttempts(r.id)

		start := time.Now()
		analysis, err := r.analyzeOnce(ctx, text, hints)
		if err == nil {
			r.stageMetric(stageAnalyze, attempt, start, nil)
			return analysis, nil
		}

		decision := o.policy.Decide(err, attempt)
		if !decision.Retry {
			r.stageMetric(stageAnalyze, attempt, start, err)
			o.logger.WarnContext(ctx, "analysis attempt failed",
				"job_id", r.id,
				"attempt", attempt+1,
				"kind", decision.Kind,
				"error", err)
			return nil, newFailure("Analysis failed", err)
		}

		metrics.EmitStage(o.metrics, metrics.StageMetric{
			Stage: stageAnalyze, Attempt: attempt, Result: metrics.ResultRetry, Duration: time.Since(start), Err: err,
		})
		o.logger.WarnContext(ctx, "retryable analysis error, retrying",
			"job_id", r.id,
			"attempt", attempt+1,
			"delay", decision.Delay,
			"error", err)
		r.transition(ctx, model.JobStatusRetrying, model.ProgressRetrying(attempt))

		if err := o.sleeper.Sleep(ctx, decision.Delay); err != nil {
			return nil, newFailure("Analysis failed", err)
		}
	}
}

func (r *jobRun) analyzeOnce(ctx context.Context, text string, hints model.AnalysisContext) (*model.Analysis, error) {
	ctx, cancel := withOptionalTimeout(ctx, r.o.analyzeTimeout)
	defer cancel()

	analysis, err := r.o.analyzer.Analyze(ctx, text, hints)
	if err != nil {
		return nil, err
	}
	if analysis == nil || analysis.Data == nil {
		return nil, job.Fatal("empty_result", ErrEmptyAnalysis)
	}
	return analysis, nil
}

func (r *jobRun) transition(ctx context.Context, to model.JobStatus, progress string) {
	o := r.o
	from := r.status
	o.registry.Update(r.id, to, progress)
	r.status = to

	o.side.MirrorStatus(r.id, r.statusFields(to, progress, ""))
	if from != to {
		metrics.EmitTransition(o.metrics, metrics.TransitionMetric{
			From: string(from), To: string(to), Result: metrics.ResultSuccess,
		})
	}
	o.logger.InfoContext(ctx, progress, "job_id", r.id, "status", to)
}

func (r *jobRun) complete(ctx context.Context, result *model.AnalysisResult) {
	o := r.o
	from := r.status
	o.registry.Complete(r.id, result)
	r.status = model.JobStatusCompleted

	fields := r.statusFields(model.JobStatusCompleted, model.ProgressComplete, "")
	fields.CompletedAt = &result.CompletedAt
	o.side.MirrorStatus(r.id, fields)
	o.side.MirrorResult(r.id, result)

	metrics.EmitTransition(o.metrics, metrics.TransitionMetric{
		From: string(from), To: string(model.JobStatusCompleted), Result: metrics.ResultSuccess,
		Duration: result.CompletedAt.Sub(r.startedAt),
	})
	o.logger.InfoContext(ctx, "analysis completed",
		"job_id", r.id,
		"score", result.OverallScore,
		"recommendation", result.Recommendation,
		"processing_time_seconds", result.ProcessingTimeSeconds)

	if r.req.CallbackURL != "" {
		o.side.DeliverCallback(r.req.CallbackURL, model.SuccessEnvelope(result))
	}
}

func (r *jobRun) fail(ctx context.Context, err error) {
	o := r.o
	from := r.status
	msg := failureMessage(err)
	now := o.clock().UTC()

	o.registry.Fail(r.id, msg)
	r.status = model.JobStatusFailed

	fields := r.statusFields(model.JobStatusFailed, model.ProgressFailed, msg)
	fields.CompletedAt = &now
	o.side.MirrorStatus(r.id, fields)
	o.side.NotifyFailure(model.FailureNotice{
		AnalysisID: r.id,
		PolicyID:   r.req.PolicyID,
		ClientName: r.req.ClientName,
		Stage:      from,
		Attempts:   r.attempts,
		Error:      msg,
		Cause:      err,
		OccurredAt: now,
	})

	metrics.EmitTransition(o.metrics, metrics.TransitionMetric{
		From: string(from), To: string(model.JobStatusFailed), Result: metrics.ResultError,
		Duration: now.Sub(r.startedAt), Err: err,
	})
	o.logger.ErrorContext(ctx, "analysis failed", "job_id", r.id, "stage", from, "error", msg)

	if r.req.CallbackURL != "" {
		o.side.DeliverCallback(r.req.CallbackURL, model.FailureEnvelope(r.id, r.req, msg, now))
	}
}

// cleanupInput removes the job-owned transient upload, if any.
func (r *jobRun) cleanupInput() {
	path := r.req.LocalFilePath
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.o.logger.Warn("failed to clean up temp file", "job_id", r.id, "path", path, "error", err)
		return
	}
	r.o.logger.Debug("cleaned up temp file", "job_id", r.id, "path", path)
}

func (r *jobRun) statusFields(status model.JobStatus, progress, errMsg string) model.StatusFields {
	return model.StatusFields{
		AnalysisID: r.id,
		PolicyID:   r.req.PolicyID,
		Status:     status,
		Progress:   progress,
		Attempts:   r.attempts,
		Error:      errMsg,
		UpdatedAt:  r.o.clock().UTC(),
	}
}

func (r *jobRun) stageMetric(stage string, attempt int, start time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	var d time.Duration
	if !start.IsZero() {
		d = time.Since(start)
	}
	metrics.EmitStage(r.o.metrics, metrics.StageMetric{Stage: stage, Attempt: attempt, Result: result, Duration: d, Err: err})
}

func failureMessage(err error) string {
	var f *jobFailure
	if errors.As(err, &f) {
		return f.msg
	}
	return err.Error()
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

type noopSideEffects struct{}

func (noopSideEffects) MirrorStatus(string, model.StatusFields)        {}
func (noopSideEffects) MirrorResult(string, *model.AnalysisResult)     {}
func (noopSideEffects) DeliverCallback(string, model.CallbackEnvelope) {}
func (noopSideEffects) NotifyFailure(model.FailureNotice)              {}
