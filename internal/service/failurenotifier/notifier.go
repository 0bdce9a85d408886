// Package failurenotifier fans analysis failure notifications out to operator sinks.
package failurenotifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/target/policy-analysis-api/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// SkipErrorClasses suppresses notifications for failures operators cannot act
	// on, such as caller input errors ("fatal_invalid_input").
	SkipErrorClasses []string
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
	skip   map[string]struct{}
}

var _ notify.Sink = (*Service)(nil)

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{
			Name: name,
			Sink: entry.Sink,
		})
	}

	skip := make(map[string]struct{}, len(opts.SkipErrorClasses))
	for _, class := range opts.SkipErrorClasses {
		skip[class] = struct{}{}
	}

	return &Service{
		logger: logger.With("component", "failure_notifier"),
		sinks:  sinks,
		skip:   skip,
	}
}

// SendAnalysisFailure fans the payload out to all sinks concurrently and joins their errors.
func (s *Service) SendAnalysisFailure(ctx context.Context, payload notify.AnalysisFailurePayload) error {
	if len(s.sinks) == 0 {
		return nil
	}

	if _, ok := s.skip[payload.ErrorClass]; ok {
		s.logger.DebugContext(ctx, "skipping notification for suppressed error class",
			"analysis_id", payload.AnalysisID,
			"error_class", payload.ErrorClass,
		)
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendAnalysisFailure(ctx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"analysis_id", payload.AnalysisID,
					"error", err,
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", entry.Name, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
