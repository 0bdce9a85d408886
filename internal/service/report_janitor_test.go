package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/policy-analysis-api/config"
	"github.com/target/policy-analysis-api/internal/observability/statsd"
)

func writeAged(t *testing.T, dir, name string, age time.Duration, now time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	mod := now.Add(-age)
	require.NoError(t, os.Chtimes(path, mod, mod))
	return path
}

func TestNewReportJanitor_RequiresReportsDir(t *testing.T) {
	_, err := NewReportJanitor(ReportJanitorOptions{})
	require.Error(t, err)
}

func TestReportJanitor_Sweep(t *testing.T) {
	now := time.Now()
	reports := t.TempDir()
	uploads := t.TempDir()

	oldReport := writeAged(t, reports, "analysis_1_Acme_Analysis.html", 8*24*time.Hour, now)
	freshReport := writeAged(t, reports, "analysis_2_Acme_Analysis.html", time.Hour, now)
	oldUpload := writeAged(t, uploads, "upload-1.pdf", 2*24*time.Hour, now)
	freshUpload := writeAged(t, uploads, "upload-2.pdf", time.Minute, now)
	require.NoError(t, os.Mkdir(filepath.Join(reports, "nested"), 0o700))

	rec := &statsd.Recorder{}
	j, err := NewReportJanitor(ReportJanitorOptions{
		ReportsDir: reports,
		UploadsDir: uploads,
		Config: config.JanitorConfig{
			Interval:        time.Minute,
			ReportRetention: 7 * 24 * time.Hour,
			UploadRetention: 24 * time.Hour,
		},
		Clock:   func() time.Time { return now },
		Metrics: rec,
	})
	require.NoError(t, err)

	res, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Reports: 1, Uploads: 1}, res)

	assert.NoFileExists(t, oldReport)
	assert.NoFileExists(t, oldUpload)
	assert.FileExists(t, freshReport)
	assert.FileExists(t, freshUpload)
	assert.DirExists(t, filepath.Join(reports, "nested"))

	sweeps := rec.Named("janitor.sweep")
	require.Len(t, sweeps, 1)
	assert.Equal(t, "success", sweeps[0].Tags["result"])
	assert.Len(t, rec.Named("janitor.files_removed"), 2)
}

func TestReportJanitor_MissingDirIsNoop(t *testing.T) {
	rec := &statsd.Recorder{}
	j, err := NewReportJanitor(ReportJanitorOptions{
		ReportsDir: filepath.Join(t.TempDir(), "does-not-exist"),
		Config:     config.JanitorConfig{Interval: time.Minute, ReportRetention: time.Hour},
		Metrics:    rec,
	})
	require.NoError(t, err)

	res, err := j.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res)
	sweeps := rec.Named("janitor.sweep")
	require.Len(t, sweeps, 1)
	assert.Equal(t, "noop", sweeps[0].Tags["result"])
}

func TestReportJanitor_RunStopsOnCancel(t *testing.T) {
	j, err := NewReportJanitor(ReportJanitorOptions{
		ReportsDir: t.TempDir(),
		Config:     config.JanitorConfig{Interval: time.Hour, ReportRetention: time.Hour},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
