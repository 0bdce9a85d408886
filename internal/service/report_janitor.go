package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/target/policy-analysis-api/config"
	obserrors "github.com/target/policy-analysis-api/internal/observability/errors"
	"github.com/target/policy-analysis-api/internal/observability/metrics"
	"github.com/target/policy-analysis-api/internal/observability/statsd"
)

// ReportJanitorOptions groups dependencies for ReportJanitor.
type ReportJanitorOptions struct {
	ReportsDir string               // Required: directory of locally retained reports
	UploadsDir string               // Optional: directory of transient uploads
	Config     config.JanitorConfig // Required: janitor configuration
	Clock      func() time.Time     // Optional: defaults to time.Now
	Logger     *slog.Logger         // Optional: structured logger
	Metrics    statsd.Sink          // Optional: metrics sink (StatsD-compatible)
}

// ReportJanitor removes locally retained reports and orphaned uploads once they
// age past their retention.
//
// Reports are kept locally only when no artifact store accepted them, and
// uploads normally disappear with their job; the janitor bounds both in the
// face of crashes and store outages.
type ReportJanitor struct {
	reportsDir string
	uploadsDir string
	config     config.JanitorConfig
	clock      func() time.Time
	logger     *slog.Logger
	metrics    statsd.Sink
}

// NewReportJanitor constructs a new ReportJanitor.
func NewReportJanitor(opts ReportJanitorOptions) (*ReportJanitor, error) {
	if opts.ReportsDir == "" {
		return nil, errors.New("ReportsDir is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "report_janitor")
	logger.Debug("ReportJanitor initialized",
		"interval", opts.Config.Interval,
		"report_retention", opts.Config.ReportRetention,
		"upload_retention", opts.Config.UploadRetention,
	)

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &ReportJanitor{
		reportsDir: opts.ReportsDir,
		uploadsDir: opts.UploadsDir,
		config:     opts.Config,
		clock:      clock,
		logger:     logger,
		metrics:    opts.Metrics,
	}, nil
}

// Run starts the janitor loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (j *ReportJanitor) Run(ctx context.Context) error {
	j.logger.InfoContext(ctx, "starting report janitor", "interval", j.config.Interval)

	j.waitWithJitter(ctx)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	if _, err := j.Sweep(ctx); err != nil {
		j.logSweepError(err, "initial sweep")
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.InfoContext(ctx, "report janitor stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				j.logSweepError(err, "sweep")
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (j *ReportJanitor) waitWithJitter(ctx context.Context) {
	maxJitter := int64(j.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		j.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// SweepResult reports how many files one sweep removed.
type SweepResult struct {
	Reports int
	Uploads int
}

// Sweep performs one cleanup pass over the reports and uploads directories.
func (j *ReportJanitor) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var (
		res  SweepResult
		errs []error
	)

	n, err := j.sweepDir(ctx, j.reportsDir, j.config.ReportRetention)
	res.Reports = n
	if err != nil {
		errs = append(errs, fmt.Errorf("sweep reports: %w", err))
	}
	j.emitOperationMetric("delete_reports", n, err)

	if j.uploadsDir != "" {
		n, err = j.sweepDir(ctx, j.uploadsDir, j.config.UploadRetention)
		res.Uploads = n
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep uploads: %w", err))
		}
		j.emitOperationMetric("delete_uploads", n, err)
	}

	joined := errors.Join(errs...)
	j.emitSweepMetric(res, joined, time.Since(start))

	if res.Reports > 0 || res.Uploads > 0 {
		j.logger.InfoContext(ctx, "removed expired files",
			"reports", res.Reports,
			"uploads", res.Uploads,
		)
	}
	if joined != nil {
		return res, fmt.Errorf("sweep failed: %w", joined)
	}
	return res, nil
}

// sweepDir removes regular files directly under dir modified before the retention cutoff.
func (j *ReportJanitor) sweepDir(ctx context.Context, dir string, retention time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := j.clock().Add(-retention)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		j.logger.DebugContext(ctx, "removed expired file", "path", path, "modified", info.ModTime())
		removed++
	}
	return removed, errors.Join(errs...)
}

func (j *ReportJanitor) emitSweepMetric(res SweepResult, err error, elapsed time.Duration) {
	if j.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if res.Reports+res.Uploads == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	j.metrics.Count("janitor.sweep", 1, tags)
	if elapsed > 0 {
		j.metrics.Timing("janitor.sweep_duration", elapsed, metrics.CloneTags(tags))
	}
	if err == nil {
		j.metrics.Gauge("janitor.last_success_epoch", float64(j.clock().Unix()), nil)
	}
}

func (j *ReportJanitor) emitOperationMetric(operation string, count int, err error) {
	if j.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}
	j.metrics.Count("janitor.sweep_operation", 1, tags)
	if err == nil && count > 0 {
		j.metrics.Count("janitor.files_removed", int64(count), metrics.CloneTags(tags))
	}
}

func (j *ReportJanitor) logSweepError(err error, label string) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		j.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	j.logger.Error(label+" failed", "error", err)
}
