package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/target/policy-analysis-api/config"
	"github.com/target/policy-analysis-api/internal/adapters/storage"
	"github.com/target/policy-analysis-api/internal/core"
	"github.com/target/policy-analysis-api/internal/data"
	"github.com/target/policy-analysis-api/internal/domain/job"
	"github.com/target/policy-analysis-api/internal/observability/notify/slack"
	"github.com/target/policy-analysis-api/internal/observability/statsd"
	"github.com/target/policy-analysis-api/internal/service"
	"github.com/target/policy-analysis-api/internal/service/failurenotifier"
)

// Feature names reported by POST /webhook/test as "<name>_configured".
const (
	featureAnthropic = "anthropic"
	featureStorage   = "storage"
	featureDatabase  = "database"
	featureRedis     = "redis"
)

// ServiceContainer holds all initialized services.
type ServiceContainer struct {
	Orchestrator  *service.Orchestrator
	Registry      *service.MemoryRegistry
	Notifier      *job.DefaultNotifier
	Delivery      *service.DeliveryWorker
	Janitor       *service.ReportJanitor
	Store         *storage.MinioStore
	Dedup         *core.WebhookDedupService
	Persistence   core.PersistenceBackend
	Features      map[string]bool
	Observability ObservabilityContainer
}

// ObservabilityContainer holds metrics and notification adapters.
type ObservabilityContainer struct {
	Metrics         statsd.Sink
	MetricsCloser   func() error
	FailureNotifier *failurenotifier.Service
}

// ServiceDeps contains dependencies needed to create services.
// DB and RedisClient are nil when the corresponding backend is disabled.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices wires the analysis pipeline and its side-effect workers.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps missing AppConfig")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	obs := buildObservability(logger, cfg.Observability)

	adapters, err := buildPipelineAdapters(ctx, cfg, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	persistence, dedup := buildPersistence(deps, logger)

	policy, err := job.NewAnalysisPolicy(cfg.Pipeline.RetryDelays, cfg.Pipeline.MaxRetries)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build retry policy: %w", err)
	}

	callbacks := service.NewCallbackDispatcher(service.CallbackDispatcherOptions{
		Secret:  cfg.Callback.Secret,
		Timeout: cfg.Callback.Timeout,
		Policy:  job.NewConstantPolicy(cfg.Callback.RetryDelay, cfg.Callback.MaxRetries),
		Client:  &http.Client{},
		Metrics: obs.Metrics,
		Logger:  logger,
	})

	deliveryOpts := service.DeliveryWorkerOptions{
		Persistence:     persistence,
		Callbacks:       callbacks,
		QueueSize:       cfg.Callback.QueueSize,
		CallbackWorkers: cfg.Callback.Workers,
		Metrics:         obs.Metrics,
		Logger:          logger,
	}
	if obs.FailureNotifier.Enabled() {
		deliveryOpts.Notifier = obs.FailureNotifier
	}
	delivery := service.NewDeliveryWorker(deliveryOpts)

	notifier := job.NewNotifier()
	registry := service.NewMemoryRegistry(service.MemoryRegistryOptions{
		Notifier: notifier,
		Logger:   logger,
	})

	orchOpts := service.OrchestratorOptions{
		Registry:       registry,
		Extractor:      adapters.Extractor,
		Analyzer:       adapters.Analyzer,
		Renderer:       adapters.Renderer,
		SideEffects:    delivery,
		Policy:         policy,
		ReportsDir:     cfg.Pipeline.ReportsDir,
		ExtractTimeout: cfg.Pipeline.ExtractTimeout,
		AnalyzeTimeout: cfg.Pipeline.AnalyzeTimeout,
		Metrics:        obs.Metrics,
		Logger:         logger,
	}
	// A nil *MinioStore must not become a non-nil interface.
	if adapters.Store != nil {
		orchOpts.Artifacts = adapters.Store
	}
	orchestrator := service.NewOrchestrator(orchOpts)

	janitor, err := service.NewReportJanitor(service.ReportJanitorOptions{
		ReportsDir: cfg.Pipeline.ReportsDir,
		UploadsDir: cfg.Pipeline.TempDir,
		Config:     cfg.Janitor,
		Logger:     logger,
		Metrics:    obs.Metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build report janitor: %w", err)
	}

	return ServiceContainer{
		Orchestrator: orchestrator,
		Registry:     registry,
		Notifier:     notifier,
		Delivery:     delivery,
		Janitor:      janitor,
		Store:        adapters.Store,
		Dedup:        dedup,
		Persistence:  persistence,
		Features: map[string]bool{
			featureAnthropic: adapters.AnalyzerReady,
			featureStorage:   adapters.Store != nil,
			featureDatabase:  deps.DB != nil,
			featureRedis:     deps.RedisClient != nil,
		},
		Observability: obs,
	}, nil
}

// buildPersistence fans status and results out to every configured backend.
// The dedup service is nil without Redis.
func buildPersistence(deps *ServiceDeps, logger *slog.Logger) (core.PersistenceBackend, *core.WebhookDedupService) {
	var (
		backends []core.PersistenceBackend
		dedup    *core.WebhookDedupService
	)
	if deps.DB != nil {
		backends = append(backends, data.NewAnalysisRepo(deps.DB))
	}
	if deps.RedisClient != nil {
		rc := deps.Config.Redis
		backends = append(backends, data.NewRedisStatusMirror(deps.RedisClient, rc.StatusTTL))
		dedup = core.NewWebhookDedupService(data.NewRedisCacheRepo(deps.RedisClient), core.WebhookDedupConfig{TTL: rc.DedupTTL})
	}
	logger.Info("persistence configured", "backends", len(backends), "webhook_dedup", dedup != nil)
	return data.NewMultiBackend(backends...), dedup
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{MetricsCloser: func() error { return nil }}
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			out.Metrics = client
			out.MetricsCloser = client.Close
		}
	}

	out.FailureNotifier = buildFailureNotifier(obsLogger, cfg.Notifications)
	return out
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	// Caller input errors are not actionable by operators.
	skip := []string{string(job.KindFatal) + "_" + job.ReasonInvalidInput}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger:           baseLogger.With("component", "failure_notifier"),
			SkipErrorClasses: skip,
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 1)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:      cfg.Slack.WebhookURL,
			Channel:         cfg.Slack.Channel,
			Username:        cfg.Slack.Username,
			Timeout:         cfg.Timeout,
			RetryLimit:      cfg.RetryLimit,
			StatusURLPrefix: cfg.Slack.StatusURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger:           baseLogger.With("component", "failure_notifier"),
		Sinks:            sinks,
		SkipErrorClasses: skip,
	})
}

// ServiceOrchestrationConfig contains dependencies for running services.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown runs the enabled services until SIGINT/SIGTERM or a
// service failure, then shuts them down in dependency order: the HTTP server
// stops accepting requests, in-flight jobs finish, queued side effects drain.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := cfg.Services
	// The worker outlives the signal so queued callbacks can still drain.
	svc.Delivery.Start(context.WithoutCancel(ctx))

	group, gctx := errgroup.WithContext(sigCtx)

	var server *http.Server
	if enabled[config.ServiceModeHTTP] {
		server = NewHTTPServer(&HTTPServerConfig{Config: cfg.Config, Services: svc, Logger: logger})
		group.Go(func() error { return ServeHTTP(server, logger) })
	}
	if enabled[config.ServiceModeJanitor] {
		group.Go(func() error { return svc.Janitor.Run(gctx) })
	}

	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated", "reason", context.Cause(gctx))
		return shutdownServices(context.WithoutCancel(ctx), cfg.Config, svc, server, logger)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("all services stopped")
	return nil
}

func shutdownServices(
	ctx context.Context,
	cfg *config.AppConfig,
	svc ServiceContainer,
	server *http.Server,
	logger *slog.Logger,
) error {
	var errs []error

	// Wake long-polling readers before the server waits on them.
	svc.Notifier.StopAll()

	if err := ShutdownHTTPServer(ShutdownConfig{Context: ctx, Server: server, Logger: logger}); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
	}

	jobsCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.ShutdownTimeout)
	defer cancel()
	if err := svc.Orchestrator.Shutdown(jobsCtx); err != nil {
		logger.Warn("in-flight jobs cancelled at shutdown", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, cfg.Callback.Timeout)
	defer drainCancel()
	if err := svc.Delivery.Close(drainCtx); err != nil {
		logger.Warn("side-effect queue not fully drained", "error", err)
	}

	if svc.Observability.MetricsCloser != nil {
		if err := svc.Observability.MetricsCloser(); err != nil {
			errs = append(errs, fmt.Errorf("close metrics: %w", err))
		}
	}

	return errors.Join(errs...)
}
