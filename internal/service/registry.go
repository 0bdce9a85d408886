package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/target/policy-analysis-api/internal/core"
	"github.com/target/policy-analysis-api/internal/domain/job"
	"github.com/target/policy-analysis-api/internal/domain/model"
)

// ErrJobExists is returned by Create when the id is already registered.
var ErrJobExists = errors.New("job already registered")

// MemoryRegistryOptions groups dependencies for MemoryRegistry.
type MemoryRegistryOptions struct {
	Notifier job.Notifier     // Optional: change notifications for long-polling readers
	Clock    func() time.Time // Optional: defaults to time.Now
	Logger   *slog.Logger     // Optional: structured logger
}

// MemoryRegistry is a process-local job registry guarded by a RWMutex.
// It is constructed once at startup and never implicitly cleared.
type MemoryRegistry struct {
	mu       sync.RWMutex
	jobs     map[string]*model.Job
	notifier job.Notifier
	clock    func() time.Time
	logger   *slog.Logger
}

var _ core.JobRegistry = (*MemoryRegistry)(nil)

// NewMemoryRegistry constructs an empty registry.
func NewMemoryRegistry(opts MemoryRegistryOptions) *MemoryRegistry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &MemoryRegistry{
		jobs:     make(map[string]*model.Job),
		notifier: opts.Notifier,
		clock:    clock,
		logger:   logger.With("component", "job_registry"),
	}
}

// Create inserts j in the started state.
func (r *MemoryRegistry) Create(j model.Job) error {
	if j.ID == "" {
		return errors.New("job id is required")
	}

	r.mu.Lock()
	if _, ok := r.jobs[j.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("create %s: %w", j.ID, ErrJobExists)
	}
	j.Status = model.JobStatusStarted
	if j.Progress == "" {
		j.Progress = model.ProgressInitializing
	}
	if j.StartedAt.IsZero() {
		j.StartedAt = r.clock().UTC()
	}
	j.CompletedAt = nil
	j.Error = nil
	j.Result = nil
	r.jobs[j.ID] = &j
	r.mu.Unlock()

	r.notify(j.ID)
	return nil
}

// Update moves the job to status. Unknown ids, terminal jobs and transitions the
// state machine does not permit are logged and ignored.
func (r *MemoryRegistry) Update(id string, status model.JobStatus, progress string) {
	if status.Terminal() {
		r.logger.Warn("terminal status must use Complete or Fail", "job_id", id, "status", status)
		return
	}
	if !r.mutate(id, func(j *model.Job) bool {
		if !j.Status.CanTransition(status) {
			r.logger.Warn("ignoring invalid transition",
				"job_id", id, "from", j.Status, "to", status)
			return false
		}
		j.Status = status
		j.Progress = progress
		return true
	}) {
		return
	}
	r.notify(id)
}

// IncrementAttempts records an analyzer attempt.
func (r *MemoryRegistry) IncrementAttempts(id string) {
	r.mutate(id, func(j *model.Job) bool {
		j.Attempts++
		return true
	})
}

// Complete marks the job completed.
func (r *MemoryRegistry) Complete(id string, result *model.AnalysisResult) {
	now := r.clock().UTC()
	if result != nil && !result.CompletedAt.IsZero() {
		now = result.CompletedAt
	}
	if r.mutate(id, func(j *model.Job) bool {
		if !j.Status.CanTransition(model.JobStatusCompleted) {
			r.logger.Warn("ignoring completion from non-generating state", "job_id", id, "from", j.Status)
			return false
		}
		j.Status = model.JobStatusCompleted
		j.Progress = model.ProgressComplete
		j.CompletedAt = &now
		j.Result = result
		return true
	}) {
		r.notify(id)
	}
}

// Fail marks the job failed with msg.
func (r *MemoryRegistry) Fail(id, msg string) {
	now := r.clock().UTC()
	if r.mutate(id, func(j *model.Job) bool {
		j.Status = model.JobStatusFailed
		j.Progress = model.ProgressFailed
		j.CompletedAt = &now
		j.Error = &msg
		return true
	}) {
		r.notify(id)
	}
}

// Get returns a snapshot of the job.
func (r *MemoryRegistry) Get(id string) (model.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return model.Job{}, false
	}
	return j.Clone(), true
}

// List returns snapshots of all jobs ordered by start time.
func (r *MemoryRegistry) List() []model.Job {
	r.mu.RLock()
	out := make([]model.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].StartedAt.Equal(out[b].StartedAt) {
			return out[a].ID < out[b].ID
		}
		return out[a].StartedAt.Before(out[b].StartedAt)
	})
	return out
}

// mutate applies fn to a non-terminal job under the write lock.
func (r *MemoryRegistry) mutate(id string, fn func(*model.Job) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		r.logger.Warn("update for unknown job", "job_id", id)
		return false
	}
	if j.Status.Terminal() {
		r.logger.Warn("update for terminal job ignored", "job_id", id, "status", j.Status)
		return false
	}
	return fn(j)
}

func (r *MemoryRegistry) notify(id string) {
	if r.notifier != nil {
		r.notifier.Notify(id)
	}
}
