package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/statement-ingest/internal/api"
	"github.com/dvloznov/statement-ingest/internal/api/handlers"
	"github.com/dvloznov/statement-ingest/internal/api/middleware"
	"github.com/dvloznov/statement-ingest/internal/app"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

func main() {
	var (
		port    = flag.String("port", "", "HTTP server port (overrides PORT)")
		workers = flag.Int("workers", inmemory.DefaultWorkers, "Concurrent async ingestion workers")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateServer()
	}
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if cfg.AuthDisabled {
		log.Warn().Msg("Authentication disabled - X-User-ID is trusted as the owner")
	}

	ctx := logger.WithContext(context.Background(), log)

	components, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer components.Close()

	// Async ingestion runs on an in-process queue
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, jobs.IngestHandler(components.Statements, components.Receipts)); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	routes := api.RouterConfig{
		Log:    log,
		Auth:   middleware.AuthConfig{Secret: cfg.JWTSecret, Disabled: cfg.AuthDisabled},
		Ingest: handlers.NewIngestHandler(components.Artifacts, components.Statements, components.Receipts, jobQueue, cfg.MaxUploadSizeBytes),
		Jobs:   handlers.NewJobsHandler(jobStore),
	}
	if cfg.ArtifactDriver == config.ArtifactLocal {
		routes.Files = http.FileServer(http.Dir(cfg.UploadDir))
		routes.FilesPrefix = cfg.UploadURL
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(routes),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight jobs finish before the stores close
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
