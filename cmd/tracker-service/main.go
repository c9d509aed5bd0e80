// tracker-service is the local daemon that tracks remote earth
// observation processing jobs for the GIS front-end.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"eotracker/internal/api"
	"eotracker/internal/completion"
	"eotracker/internal/config"
	"eotracker/internal/dispatcher"
	"eotracker/internal/health"
	"eotracker/internal/history"
	"eotracker/internal/importer"
	"eotracker/internal/job"
	"eotracker/internal/observability"
	"eotracker/internal/poller"
	"eotracker/internal/remote"
	"eotracker/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	dispatcherCfg := dispatcher.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Pipeline catalog
	catalog, err := config.LoadCatalog(svcCfg.PipelinesFile)
	if err != nil {
		return err
	}
	slog.Info("Pipeline catalog loaded", "pipelines", len(catalog.Pipelines), "file", svcCfg.PipelinesFile)

	// Remote platform client
	platform := remote.NewClient(remote.Config{
		BaseURL:       svcCfg.PlatformURL,
		Timeout:       svcCfg.HTTPTimeout,
		TokenLifetime: svcCfg.TokenLifetime,
		TokenBuffer:   svcCfg.TokenBuffer,
	})

	// Establish the platform session up front when credentials are
	// configured. Failure is not fatal: the GUI can log in later.
	if svcCfg.PlatformUsername != "" {
		if err := platform.Login(ctx, svcCfg.PlatformUsername, svcCfg.PlatformPassword); err != nil {
			slog.Warn("Initial platform login failed", "error", err)
		}
	}

	// Job store, seeded from the persisted history
	jobStore := store.New()
	archive, err := history.Open(svcCfg.HistoryPath)
	if err != nil {
		return err
	}
	defer archive.Close()

	persisted, err := archive.Load()
	if err != nil {
		return err
	}
	jobStore.Load(persisted)
	jobStore.OnChange(archive.Listener())
	slog.Info("Job history loaded", "jobs", len(persisted), "path", svcCfg.HistoryPath)

	// Front-end event channel
	eventDispatcher := dispatcher.NewMemory(dispatcherCfg, metrics)
	notifier := dispatcher.NewNotifier(eventDispatcher, svcCfg.CallbackURL, svcCfg.SigningKey)

	// Completion dispatcher: download + import for succeeded jobs
	spool := importer.NewSpool(svcCfg.LayersDir)
	completionDispatcher := completion.New(platform, jobStore, spool, notifier, metrics, completion.Config{
		DownloadDir: filepath.Join(svcCfg.LayersDir, "downloads"),
	})
	completionDispatcher.Start(ctx)

	// Poll scheduler over the active jobs (including reloaded ones)
	pollScheduler := poller.New(platform, jobStore, completionDispatcher, notifier, metrics, poller.Config{
		Interval:         svcCfg.PollInterval,
		FailureThreshold: svcCfg.PollFailureThreshold,
		MaxBackoff:       svcCfg.PollMaxBackoff,
	})
	pollScheduler.Start(ctx)

	// Create health checker
	healthChecker := health.NewChecker(platform)

	// Create job service
	jobService := job.NewService(platform, jobStore, catalog, metrics, notifier)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		JobService:    jobService,
		Completion:    completionDispatcher,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
		UploadDir:     filepath.Join(svcCfg.LayersDir, "uploads"),
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for the front-end to notice the readiness flip
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Stop the poll scheduler; an in-flight cycle finishes and
	// its transitions are committed to the store.
	slog.Info("Stopping poll scheduler")
	pollScheduler.Stop()

	// Phase 4: Drain the completion queue, then the callback dispatcher
	slog.Info("Draining completion queue")
	completionDispatcher.Stop()

	slog.Info("Draining callback dispatcher")
	dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatcherCancel()
	if err := eventDispatcher.Close(dispatcherCtx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}

	// Log final dispatcher stats
	stats := eventDispatcher.Stats()
	slog.Info("Dispatcher stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	// Phase 5: Final history snapshot so the next session resumes
	// polling the still-active jobs.
	if err := archive.SaveSnapshot(jobStore.ListAll()); err != nil {
		slog.Warn("Final history snapshot failed", "error", err)
	}

	slog.Info("Remote jobs keep running on the platform and will be picked up next session")
	slog.Info("Shutdown complete")
	return nil
}
