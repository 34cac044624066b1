package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/soundlib/waveform-be/internal/artifacts"
	"github.com/soundlib/waveform-be/internal/auth"
	"github.com/soundlib/waveform-be/internal/blob"
	"github.com/soundlib/waveform-be/internal/config"
	"github.com/soundlib/waveform-be/internal/dispatch/handler"
	"github.com/soundlib/waveform-be/internal/dispatch/router"
	"github.com/soundlib/waveform-be/internal/metrics"
	"github.com/soundlib/waveform-be/internal/pipeline"
	"github.com/soundlib/waveform-be/internal/scheduler"
	"github.com/soundlib/waveform-be/internal/waveform"
	"github.com/soundlib/waveform-be/shared/logger"
	"github.com/soundlib/waveform-be/shared/postgresql"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("DISPATCH_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/dispatch-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateDispatchConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting dispatch service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	db, closeDB, err := initDatabase(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeDB()

	artifactStore := artifacts.NewStore(db, appLogger.Logger)
	schemaCtx, schemaCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer schemaCancel()
	if err := artifactStore.EnsureSchema(schemaCtx); err != nil {
		return err
	}

	blobStore, err := blob.NewFilesystemStore(cfg.BlobStore.Root, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	collector := metrics.NewCollector()
	extractor := waveform.NewExtractor(cfg.Processor.DecodeBinary, cfg.Processor.DecodeTimeout, appLogger.Logger)

	processor := pipeline.NewProcessor(&pipeline.Config{
		Blobs:        blobStore,
		Artifacts:    artifactStore,
		Extractor:    extractor,
		Metrics:      collector,
		Logger:       appLogger.Logger,
		SampleCount:  cfg.Processor.SampleCount,
		RenderWidth:  cfg.Processor.RenderWidth,
		RenderHeight: cfg.Processor.RenderHeight,
	})

	authenticator := auth.New(&auth.Config{
		DispatcherSignature:  cfg.Auth.DispatcherSignature,
		AllowedQueues:        cfg.Auth.AllowedQueues,
		ServiceAccountSuffix: cfg.Auth.ServiceAccountSuffix,
		Strict:               cfg.Auth.Strict,
	}, appLogger.Logger)

	deps := &handler.Dependencies{
		Logger:        appLogger.Logger,
		Processor:     processor,
		Authenticator: authenticator,
		Metrics:       collector,
	}

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(&scheduler.Config{
			Processor:    processor,
			Logger:       appLogger.Logger,
			Workers:      cfg.Scheduler.Workers,
			PollInterval: cfg.Scheduler.PollInterval,
			MaxAttempts:  cfg.Scheduler.MaxAttempts,
		})
		sched.Start()
		deps.Scheduler = sched
		appLogger.Info("In-process scheduler started",
			slog.Int("workers", cfg.Scheduler.Workers),
		)
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := router.SetupRouter(deps)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed to start",
				slog.Any("error", err),
			)
			os.Exit(1)
		}
	}()

	appLogger.Info("Dispatch service is running",
		slog.String("address", addr),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down dispatch service...")

	if sched != nil {
		timeout := cfg.Scheduler.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		if err := sched.Shutdown(timeout); err != nil {
			appLogger.Warn("Scheduler did not drain in time",
				slog.Any("error", err),
			)
		}
		stats := sched.Stats()
		appLogger.Info("Final scheduler stats",
			slog.Int64("enqueued", stats.Enqueued),
			slog.Int64("completed", stats.Completed),
			slog.Int64("failed", stats.Failed),
			slog.Int64("retried", stats.Retried),
		)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
		return err
	}

	appLogger.Info("Dispatch service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initDatabase opens the metadata database for the configured driver and
// returns the handle plus a close function.
func initDatabase(cfg *config.DatabaseConfig, log *slog.Logger) (*sqlx.DB, func(), error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := artifacts.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info("SQLite metadata store opened",
			slog.String("path", cfg.SQLitePath),
		)
		return db, func() { db.Close() }, nil

	default:
		client, err := postgresql.NewClient(&postgresql.Config{
			Host:            cfg.Host,
			Port:            cfg.Port,
			User:            cfg.User,
			Password:        cfg.Password,
			Database:        cfg.Database,
			SSLMode:         cfg.SSLMode,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		return client.GetDB(), func() { client.Close() }, nil
	}
}
