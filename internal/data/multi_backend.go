package data

import (
	"context"
	"errors"

	"github.com/target/policy-analysis-api/internal/core"
	"github.com/target/policy-analysis-api/internal/domain/model"
)

// MultiBackend writes to every configured backend. One backend failing does not
// stop the others; the failures are joined.
type MultiBackend struct {
	backends []core.PersistenceBackend
}

var _ core.PersistenceBackend = (*MultiBackend)(nil)

// NewMultiBackend returns a backend fanning out to the non-nil entries of
// backends. With none it returns NoopBackend; with one it returns that backend.
func NewMultiBackend(backends ...core.PersistenceBackend) core.PersistenceBackend {
	var live []core.PersistenceBackend
	for _, b := range backends {
		if b != nil {
			live = append(live, b)
		}
	}
	switch len(live) {
	case 0:
		return NoopBackend{}
	case 1:
		return live[0]
	}
	return &MultiBackend{backends: live}
}

// UpsertStatus implements core.PersistenceBackend.
func (m *MultiBackend) UpsertStatus(ctx context.Context, jobID string, fields model.StatusFields) error {
	var errs []error
	for _, b := range m.backends {
		if err := b.UpsertStatus(ctx, jobID, fields); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UpsertResult implements core.PersistenceBackend.
func (m *MultiBackend) UpsertResult(ctx context.Context, jobID string, result *model.AnalysisResult) error {
	var errs []error
	for _, b := range m.backends {
		if err := b.UpsertResult(ctx, jobID, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoopBackend discards every write.
type NoopBackend struct{}

// UpsertStatus implements core.PersistenceBackend.
func (NoopBackend) UpsertStatus(context.Context, string, model.StatusFields) error { return nil }

// UpsertResult implements core.PersistenceBackend.
func (NoopBackend) UpsertResult(context.Context, string, *model.AnalysisResult) error { return nil }
