package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/soundlib/waveform-be/internal/pipeline/domain"
	"github.com/soundlib/waveform-be/internal/scheduler"
	"github.com/soundlib/waveform-be/shared/rabbitmq"
)

// Config holds consumer configuration.
type Config struct {
	Logger        *slog.Logger
	RabbitClient  *rabbitmq.Client
	Processor     scheduler.Processor
	ConsumerTag   string
	Concurrency   int
	PrefetchCount int
}

// Consumer is the broker-driven front door: it drains waveform job payloads
// from RabbitMQ and executes them through the processing pipeline. Retry
// ownership stays with the broker — failures are nacked with requeue only
// when the pipeline classified them retryable.
type Consumer struct {
	logger        *slog.Logger
	rabbitClient  *rabbitmq.Client
	processor     scheduler.Processor
	consumerTag   string
	concurrency   int
	prefetchCount int
	wg            sync.WaitGroup
}

// New creates a consumer instance.
func New(cfg *Config) *Consumer {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}
	return &Consumer{
		logger:        cfg.Logger,
		rabbitClient:  cfg.RabbitClient,
		processor:     cfg.Processor,
		consumerTag:   cfg.ConsumerTag,
		concurrency:   concurrency,
		prefetchCount: prefetch,
	}
}

// Start subscribes to the queue and processes deliveries until ctx is
// canceled. It blocks for the lifetime of the consumer.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.rabbitClient.SetQoS(c.prefetchCount); err != nil {
		return err
	}

	deliveries, err := c.rabbitClient.Consume(c.consumerTag)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("Consumer started",
		slog.String("consumer_tag", c.consumerTag),
		slog.Int("concurrency", c.concurrency),
		slog.Int("prefetch_count", c.prefetchCount),
	)

	for i := 0; i < c.concurrency; i++ {
		c.wg.Add(1)
		go c.workerLoop(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("Consumer context canceled, waiting for workers")
	c.wg.Wait()
	return nil
}

func (c *Consumer) workerLoop(ctx context.Context, workerNum int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("Delivery channel closed",
					slog.Int("worker_num", workerNum),
				)
				return
			}
			c.handleDelivery(ctx, workerNum, delivery)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, workerNum int, delivery amqp.Delivery) {
	var payload domain.WaveformJobPayload
	if err := json.Unmarshal(delivery.Body, &payload); err != nil {
		c.logger.Error("Malformed delivery body",
			slog.Int("worker_num", workerNum),
			slog.String("error", err.Error()),
		)
		// Malformed bodies can never succeed; drop them toward the DLQ.
		c.nack(delivery, false)
		return
	}

	result, err := c.processor.Process(ctx, &payload)
	if err != nil {
		requeue := domain.IsRetryable(err)
		c.logger.Error("Delivery processing failed",
			slog.Int("worker_num", workerNum),
			slog.String("asset_id", payload.AssetID),
			slog.String("kind", string(domain.KindOf(err))),
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
		c.nack(delivery, requeue)
		return
	}

	c.logger.Info("Delivery processed",
		slog.Int("worker_num", workerNum),
		slog.String("asset_id", payload.AssetID),
		slog.String("status", result.Status),
		slog.String("location", result.ArtifactLocation),
	)
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("Failed to ACK delivery",
			slog.Int("worker_num", workerNum),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		c.logger.Error("Failed to NACK delivery",
			slog.Bool("requeue", requeue),
			slog.String("error", err.Error()),
		)
	}
}
