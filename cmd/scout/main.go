package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/scout/pkg/config"
	"github.com/platinummonkey/scout/pkg/httputil"
	"github.com/platinummonkey/scout/pkg/index"
	"github.com/platinummonkey/scout/pkg/indexer"
	"github.com/platinummonkey/scout/pkg/observability"
	"github.com/platinummonkey/scout/pkg/search"
	"github.com/platinummonkey/scout/pkg/watcher"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	configureLogrus(cfg.Observability.LogLevel)

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	ctx := context.Background()
	var otelProviders *observability.OTelProviders
	if cfg.Observability.OTelEnabled {
		otelProviders, err = observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("tracing init failed, continuing without it")
		}
	}

	// Index service: load the snapshot, then prune entries whose files
	// vanished while the process was down
	idx := index.NewService(logger)
	if metrics != nil {
		idx.SetMetrics(metrics)
	}
	if err := idx.Initialize(cfg.Index.Root, cfg.Index.SnapshotPath); err != nil {
		logrus.Fatalf("Failed to initialize index: %v", err)
	}
	if _, err := idx.Reconcile(ctx); err != nil {
		logger.WithError(err).Warn("snapshot reconcile failed, stale entries may linger")
	}

	var history *search.History
	if cfg.Search.HistoryEnabled {
		historyPath := cfg.Search.HistoryPath
		if historyPath == "" {
			historyPath = search.DefaultHistoryPath(cfg.Index.Root)
		}
		history, err = search.OpenHistory(historyPath)
		if err != nil {
			logger.WithError(err).WithField("path", historyPath).
				Warn("search history unavailable, suggestions disabled")
		} else if metrics != nil {
			history.SetMetrics(metrics)
		}
	}

	searchSvc := search.NewService(idx, history, search.ServiceConfig{
		DefaultLimit: cfg.Search.DefaultLimit,
		CacheSize:    cfg.Search.CacheSize,
		CacheTTL:     cfg.Search.CacheTTL,
	}, logger)
	if metrics != nil {
		searchSvc.SetMetrics(metrics)
	}

	ix := indexer.New(idx, cfg.Index.Root, indexer.Config{
		DebounceWindow: cfg.Indexer.DebounceWindow,
		BatchWindow:    cfg.Indexer.BatchWindow,
		MaxAttempts:    cfg.Indexer.MaxAttempts,
	}, nil)
	if metrics != nil {
		ix.SetMetrics(metrics)
	}

	w, err := watcher.New(cfg.Index.Root, watcher.Config{
		DebounceWindow:    cfg.Watcher.DebounceWindow,
		AllowedExtensions: cfg.Watcher.AllowedExtensions,
		ExcludedDirs:      cfg.Watcher.ExcludedDirs,
		EmitInitial:       true,
		ScanRate:          cfg.Watcher.ScanRate,
	}, ix, nil)
	if err != nil {
		logrus.Fatalf("Failed to create watcher: %v", err)
	}
	if err := w.Start(ctx); err != nil {
		logrus.Fatalf("Failed to start watcher: %v", err)
	}
	logger.WithField("root", cfg.Index.Root).Info("watching content tree")

	// Periodic maintenance: stats self-check and snapshot flushes
	maintenance := cron.New()
	if _, err := maintenance.AddFunc(cfg.Maintenance.VerifySchedule, func() {
		defer observability.RecoverPanic(logger, "stats verification")
		idx.VerifyStats()
	}); err != nil {
		logrus.Fatalf("Failed to schedule stats verification: %v", err)
	}
	if _, err := maintenance.AddFunc(cfg.Maintenance.FlushSchedule, func() {
		defer observability.RecoverPanic(logger, "snapshot flush")
		ix.Flush()
		if err := idx.Flush(); err != nil {
			logger.WithError(err).Warn("scheduled snapshot flush failed")
		}
	}); err != nil {
		logrus.Fatalf("Failed to schedule snapshot flush: %v", err)
	}
	maintenance.Start()

	apiServer := buildAPIServer(cfg, searchSvc, history, ix, metrics, otelProviders != nil, logger)
	healthServer := buildHealthServer(cfg, idx, history, registry)

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	// Registration order is the shutdown order: stop producing events, flush
	// what is queued, write the final snapshot, then release the rest
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return w.Stop() })
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		ix.Flush()
		ix.Stop()
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return idx.Destroy() })
	if history != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error { return history.Close() })
	}
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		<-maintenance.Stop().Done()
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return healthServer.Shutdown(ctx) })
	if otelProviders != nil {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	var servers errgroup.Group
	servers.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("search API listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	servers.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health/metrics listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	go func() {
		if err := servers.Wait(); err != nil {
			logrus.Fatalf("Server failed: %v", err)
		}
	}()

	if err := sm.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info("scout stopped")
}

func buildAPIServer(cfg *config.Config, svc *search.Service, history *search.History,
	pending search.PendingReporter, metrics *observability.Metrics, traced bool,
	logger *observability.Logger) *http.Server {

	router := mux.NewRouter()
	search.NewHandlers(svc, history, pending).RegisterRoutes(router)

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
	}
	if metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(metrics))
	}

	var handler http.Handler = httputil.Chain(middlewares...)(router)
	if traced {
		handler = otelhttp.NewHandler(handler, "scout-api")
	}

	return &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func buildHealthServer(cfg *config.Config, idx *index.Service, history *search.History,
	registry *prometheus.Registry) *http.Server {

	var historyDB *sql.DB
	if history != nil {
		historyDB = history.DB()
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(historyDB, idx))
	observability.RegisterMetricsEndpoint(healthMux, registry)

	return &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}
}

// configureLogrus aligns the packages logging through logrus (watcher,
// indexer, async) with the configured level
func configureLogrus(level observability.LogLevel) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	switch level {
	case observability.DebugLevel:
		logrus.SetLevel(logrus.DebugLevel)
	case observability.WarnLevel:
		logrus.SetLevel(logrus.WarnLevel)
	case observability.ErrorLevel:
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}
}
