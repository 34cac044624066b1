package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"github.com/soundlib/waveform-be/internal/artifacts"
	"github.com/soundlib/waveform-be/internal/blob"
	"github.com/soundlib/waveform-be/internal/config"
	"github.com/soundlib/waveform-be/internal/consumer"
	"github.com/soundlib/waveform-be/internal/metrics"
	"github.com/soundlib/waveform-be/internal/pipeline"
	"github.com/soundlib/waveform-be/internal/waveform"
	"github.com/soundlib/waveform-be/shared/logger"
	"github.com/soundlib/waveform-be/shared/postgresql"
	"github.com/soundlib/waveform-be/shared/rabbitmq"
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

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	appLogger.Info("Starting worker service",
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

	rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:              cfg.RabbitMQ.Host,
		Port:              cfg.RabbitMQ.Port,
		User:              cfg.RabbitMQ.User,
		Password:          cfg.RabbitMQ.Password,
		VHost:             cfg.RabbitMQ.VHost,
		ExchangeName:      cfg.RabbitMQ.Exchange,
		ExchangeType:      cfg.RabbitMQ.ExchangeType,
		QueueName:         cfg.RabbitMQ.Queue,
		RoutingKey:        cfg.RabbitMQ.RoutingKey,
		Durable:           cfg.RabbitMQ.Durable,
		RetryAttempts:     cfg.RabbitMQ.RetryAttempts,
		RetryInterval:     cfg.RabbitMQ.RetryInterval,
		Heartbeat:         cfg.RabbitMQ.Heartbeat,
		ConnectionTimeout: cfg.RabbitMQ.ConnectionTimeout,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

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

	cons := consumer.New(&consumer.Config{
		Logger:        appLogger.Logger,
		RabbitClient:  rabbitClient,
		Processor:     processor,
		ConsumerTag:   fmt.Sprintf("waveform-worker-%s", uuid.New().String()[:8]),
		Concurrency:   cfg.Consumer.Concurrency,
		PrefetchCount: cfg.Consumer.PrefetchCount,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- cons.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-done:
		if err != nil {
			appLogger.Error("Consumer error",
				slog.Any("error", err),
			)
			return err
		}
		appLogger.Warn("Consumer stopped unexpectedly")
		return nil
	}

	cancel()

	timeout := cfg.Consumer.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		appLogger.Info("Consumer stopped gracefully")
	case <-time.After(timeout):
		appLogger.Warn("Consumer shutdown timeout exceeded, forcing exit")
	}

	snap := collector.Snapshot()
	appLogger.Info("Final processing metrics",
		slog.Int64("requests", snap.Requests),
		slog.Int64("successes", snap.Successes),
		slog.Int64("failures", snap.Failures),
		slog.Int64("cache_hits", snap.CacheHits),
	)

	appLogger.Info("Worker service shutdown complete")
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
