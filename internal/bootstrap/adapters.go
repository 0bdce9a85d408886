package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/policy-analysis-api/config"
	"github.com/target/policy-analysis-api/internal/adapters/analyzer"
	"github.com/target/policy-analysis-api/internal/adapters/extractor"
	"github.com/target/policy-analysis-api/internal/adapters/renderer"
	"github.com/target/policy-analysis-api/internal/adapters/storage"
	"github.com/target/policy-analysis-api/internal/core"
	"github.com/target/policy-analysis-api/internal/domain/job"
	"github.com/target/policy-analysis-api/internal/domain/model"
)

const storageStartupTimeout = 10 * time.Second

// pipelineAdapters groups the stage implementations handed to the orchestrator.
type pipelineAdapters struct {
	Extractor core.Extractor
	Analyzer  core.Analyzer
	Renderer  core.Renderer
	Store     *storage.MinioStore

	// AnalyzerReady is false when no API key is configured.
	AnalyzerReady bool
}

// buildPipelineAdapters constructs extraction, analysis, rendering and optional
// artifact storage from configuration.
func buildPipelineAdapters(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (pipelineAdapters, error) {
	var out pipelineAdapters

	out.Extractor = extractor.New(extractor.Options{
		HTTPClient:       &http.Client{Timeout: cfg.Pipeline.ExtractTimeout},
		TempDir:          cfg.Pipeline.TempDir,
		MaxDownloadBytes: cfg.HTTP.MaxUploadBytes,
		Logger:           logger,
	})

	a, err := analyzer.New(analyzer.Options{
		Config:     cfg.Analyzer,
		HTTPClient: &http.Client{Timeout: cfg.Pipeline.AnalyzeTimeout},
		Logger:     logger,
	})
	switch {
	case errors.Is(err, analyzer.ErrNoAPIKey):
		logger.WarnContext(ctx, "analyzer disabled; jobs will fail until ANTHROPIC_API_KEY is set")
		out.Analyzer = unconfiguredAnalyzer{}
	case err != nil:
		return out, fmt.Errorf("build analyzer: %w", err)
	default:
		out.Analyzer = a
		out.AnalyzerReady = true
	}

	r, err := renderer.New(renderer.Options{
		OutputDir: cfg.Pipeline.ReportsDir,
		Logger:    logger,
	})
	if err != nil {
		return out, fmt.Errorf("build renderer: %w", err)
	}
	out.Renderer = r

	store, err := buildArtifactStore(ctx, cfg.Storage, logger)
	if err != nil {
		return out, err
	}
	out.Store = store

	return out, nil
}

// buildArtifactStore returns nil when storage is disabled.
func buildArtifactStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*storage.MinioStore, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	store, err := storage.NewMinioStoreFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build artifact store: %w", err)
	}
	if cfg.CreateBucket {
		bctx, cancel := context.WithTimeout(ctx, storageStartupTimeout)
		defer cancel()
		if err := store.EnsureBucket(bctx, cfg.Region); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
	}
	logger.InfoContext(ctx, "artifact store configured", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return store, nil
}

// unconfiguredAnalyzer fails every job without retrying.
type unconfiguredAnalyzer struct{}

func (unconfiguredAnalyzer) Analyze(context.Context, string, model.AnalysisContext) (*model.Analysis, error) {
	return nil, job.Fatal("not_configured", analyzer.ErrNoAPIKey)
}
