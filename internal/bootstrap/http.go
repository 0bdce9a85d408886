package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/policy-analysis-api/config"
	httpx "github.com/target/policy-analysis-api/internal/http"
)

const httpShutdownTimeout = 10 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// NewHTTPServer builds the HTTP server with the router and middleware applied.
// The caller starts it with ServeHTTP.
func NewHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	services := httpx.RouterServices{
		Analyses:       cfg.Services.Orchestrator,
		Notifier:       cfg.Services.Notifier,
		Dedup:          cfg.Services.Dedup,
		Results:        cfg.Services.Persistence,
		WebhookSecret:  appCfg.Callback.Secret,
		TempDir:        appCfg.Pipeline.TempDir,
		MaxUploadBytes: appCfg.HTTP.MaxUploadBytes,
		MaxStatusWait:  appCfg.HTTP.MaxStatusWait,
		Features:       cfg.Services.Features,
		Logger:         logger,
	}
	// Nil pointers must not become non-nil interfaces.
	if cfg.Services.Store != nil {
		services.Reports = cfg.Services.Store
	}
	if cfg.Services.Orchestrator != nil {
		services.Jobs = cfg.Services.Orchestrator
	}
	if cfg.Services.Delivery != nil {
		services.Delivery = cfg.Services.Delivery
	}

	handler := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: services,
	})

	return newServer(handler, appCfg.HTTP)
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services httpx.RouterServices
}

// Order: Recover -> Logging -> Router.
func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	h := httpx.NewRouter(cfg.Services)
	h = httpx.Logging(cfg.Logger)(h)
	h = httpx.Recover(cfg.Logger)(h)
	return h
}

func newServer(handler http.Handler, cfg config.HTTPConfig) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		// Long-polled status reads hold the response open for up to MaxStatusWait.
		WriteTimeout: cfg.MaxStatusWait + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// ServeHTTP runs server until it is shut down. A clean shutdown returns nil.
func ServeHTTP(server *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("starting HTTP server", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(parent, httpShutdownTimeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
