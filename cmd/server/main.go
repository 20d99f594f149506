package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"smartai/internal/api"
	"smartai/internal/app/grader"
	"smartai/internal/app/registry"
	"smartai/internal/app/runner"
	"smartai/internal/app/service"
	"smartai/internal/app/worker"
	"smartai/internal/domain/repository"
	"smartai/internal/platform/config"
	"smartai/internal/platform/database"
	"smartai/internal/platform/queue"
	"smartai/internal/platform/telemetry"
	"syscall"
	"time"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Telemetry
	otelShutdown := func(context.Context) error { return nil }
	if cfg.OTelEnabled {
		shutdown, err := telemetry.SetupOTelSDK(ctx)
		if err != nil {
			log.Fatalf("Could not set up OpenTelemetry: %v", err)
		}
		otelShutdown = shutdown
	}
	logger := telemetry.NewLogger(cfg.LogMode, cfg.LogLevel, os.Stdout)
	logger.Info("configuration loaded", "grader_mode", cfg.GraderMode, "max_concurrent", cfg.MaxConcurrentGrading)

	metrics, err := telemetry.NewGradingMetrics()
	if err != nil {
		logger.Warn("grading metrics disabled", "error", err)
	}

	// 3. Initialize Result Archive
	var archive repository.ResultArchiveRepository
	if cfg.ArchiveDriver != "" && cfg.ArchiveDriver != "none" {
		db, err := database.Connect(ctx, cfg.ArchiveDriver, cfg.ArchiveDSN)
		if err != nil {
			logger.Error("could not connect to archive database", "driver", cfg.ArchiveDriver, "error", err)
			os.Exit(1)
		}
		defer closeDB(db, logger)
		if err := database.Migrate(ctx, db); err != nil {
			logger.Error("could not migrate archive schema", "error", err)
			os.Exit(1)
		}
		archive = repository.NewSQLResultArchiveRepository(db, cfg.ArchiveDriver)
		logger.Info("result archive connected", "driver", cfg.ArchiveDriver)
	}

	// 4. Initialize Redis job events
	runnerOpts := []runner.Option{runner.WithMetrics(metrics)}
	if cfg.RedisAddr != "" {
		rdb, err := queue.ConnectRedis(ctx, cfg)
		if err != nil {
			logger.Error("could not connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		publisher := queue.NewJobEventPublisher(rdb, cfg.JobEventsChannel, cfg.JobStatusTTL, logger)
		runnerOpts = append(runnerOpts, runner.WithEventPublisher(publisher))
		logger.Info("redis connected", "channel", cfg.JobEventsChannel)
	}

	// 5. Initialize Grader
	var g grader.Grader
	switch cfg.GraderMode {
	case "http":
		if cfg.GraderURL == "" {
			logger.Error("GRADER_URL is required when GRADER_MODE=http")
			os.Exit(1)
		}
		g = grader.NewHTTPGrader(cfg.GraderURL, cfg.GraderAPIKey)
	default:
		g = grader.NewMockGrader(cfg.MockGraderLatency)
	}

	// 6. Initialize Registry, Runner & Services
	jobRegistry := registry.NewRegistry(logger)
	archiver := service.NewResultArchiver(archive, logger)
	runnerOpts = append(runnerOpts, runner.WithOnFinished(archiver.Archive))
	jobRunner := runner.NewRunner(jobRegistry, g, runner.Config{
		MaxConcurrent: cfg.MaxConcurrentGrading,
		MaxRetries:    cfg.GradingMaxRetries,
		BaseDelay:     cfg.GradingRetryBaseDelay,
		MaxDelay:      cfg.GradingRetryMaxDelay,
		CallTimeout:   cfg.GraderTimeout,
	}, logger, runnerOpts...)
	gradingService := service.NewGradingService(jobRegistry, jobRunner, archive, logger)

	// 7. Initialize Retention Worker (as a goroutine)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	retention := worker.NewRetentionWorker(jobRegistry, cfg.JobRetention, cfg.RetentionSweepInterval, logger)
	go retention.Start(workerCtx)

	// 8. Initialize Router & HTTP Server
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      api.NewRouter(gradingService, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("could not listen", "port", cfg.APIPort, "error", err)
			stop()
		}
	}()

	// 9. Graceful Shutdown
	<-ctx.Done()
	logger.Info("shutting down server")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	if err := jobRunner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("grading did not drain before deadline", "error", err)
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		log.Printf("OpenTelemetry shutdown failed: %v", err)
	}

	logger.Info("server and runner stopped")
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("failed to close archive database", "error", err)
	}
}
