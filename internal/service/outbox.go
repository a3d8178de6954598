package service

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/interfaces"
	"github.com/paygrid/payment-orchestrator/internal/telemetry"
)

// BusWriter is satisfied by *kafka.Writer; tests substitute a fake.
type BusWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxPublisherConfig tunes the polling loop.
type OutboxPublisherConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
}

func DefaultOutboxPublisherConfig() OutboxPublisherConfig {
	return OutboxPublisherConfig{
		BatchSize:    100,
		PollInterval: time.Second,
		MaxRetries:   5,
	}
}

// OutboxPublisher drains committed outbox rows to the message bus. Rows that
// keep failing stop being retried after MaxRetries and wait for dead-letter
// handling.
type OutboxPublisher struct {
	repo   interfaces.OutboxRepository
	writer BusWriter
	cfg    OutboxPublisherConfig
	logger *zap.Logger
}

func NewOutboxPublisher(repo interfaces.OutboxRepository, writer BusWriter, cfg OutboxPublisherConfig, logger *zap.Logger) *OutboxPublisher {
	return &OutboxPublisher{repo: repo, writer: writer, cfg: cfg, logger: logger}
}

// Run polls until the context is cancelled.
func (p *OutboxPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Outbox publisher started",
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Duration("poll_interval", p.cfg.PollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox publisher stopped")
			return
		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				p.logger.Error("Outbox batch failed", zap.Error(err))
			}
		}
	}
}

// PublishBatch publishes one bounded batch in creation order and returns the
// number of messages published.
func (p *OutboxPublisher) PublishBatch(ctx context.Context) (int, error) {
	messages, err := p.repo.FetchUnprocessed(ctx, p.cfg.BatchSize, p.cfg.MaxRetries)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, msg := range messages {
		err := p.writer.WriteMessages(ctx, kafka.Message{
			Topic: msg.Topic,
			Key:   []byte(msg.ID.String()),
			Value: msg.Payload,
		})
		if err != nil {
			telemetry.OutboxFailures.Inc()
			p.logger.Warn("Outbox publish failed",
				zap.String("message_id", msg.ID.String()),
				zap.String("event_type", msg.EventType),
				zap.Int("retry_count", msg.RetryCount),
				zap.Error(err),
			)
			if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
				return published, markErr
			}
			continue
		}
		if err := p.repo.MarkProcessed(ctx, msg.ID); err != nil {
			return published, err
		}
		telemetry.OutboxPublished.Inc()
		published++
	}
	return published, nil
}
