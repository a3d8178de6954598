package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/models"
)

type fakeBusWriter struct {
	mu      sync.Mutex
	written []kafka.Message
	fail    func(msg kafka.Message) error
}

func (w *fakeBusWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, msg := range msgs {
		if w.fail != nil {
			if err := w.fail(msg); err != nil {
				return err
			}
		}
		w.written = append(w.written, msg)
	}
	return nil
}

func testOutboxConfig() OutboxPublisherConfig {
	return OutboxPublisherConfig{
		BatchSize:    100,
		PollInterval: time.Millisecond,
		MaxRetries:   5,
	}
}

func outboxRow(eventType string) *models.OutboxMessage {
	return &models.OutboxMessage{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   []byte(`{"type":"` + eventType + `"}`),
		Topic:     models.TopicPaymentEvents,
		CreatedAt: time.Now().UTC(),
	}
}

func TestPublishBatchPublishesAndMarksProcessed(t *testing.T) {
	repo := &memOutboxRepo{messages: []*models.OutboxMessage{
		outboxRow(models.EventPaymentCreated),
		outboxRow(models.EventPaymentSucceeded),
	}}
	writer := &fakeBusWriter{}
	p := NewOutboxPublisher(repo, writer, testOutboxConfig(), zap.NewNop())

	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, writer.written, 2)
	assert.Equal(t, models.TopicPaymentEvents, writer.written[0].Topic)
	assert.Equal(t, repo.messages[0].ID.String(), string(writer.written[0].Key))
	assert.Equal(t, repo.messages[0].Payload, writer.written[0].Value)

	for _, msg := range repo.messages {
		assert.NotNil(t, msg.ProcessedAt)
	}

	// Nothing left for the next poll.
	n, err = p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPublishBatchMarksFailuresAndContinues(t *testing.T) {
	poison := outboxRow(models.EventPaymentCreated)
	healthy := outboxRow(models.EventPaymentSucceeded)
	repo := &memOutboxRepo{messages: []*models.OutboxMessage{poison, healthy}}

	writer := &fakeBusWriter{fail: func(msg kafka.Message) error {
		if string(msg.Key) == poison.ID.String() {
			return errors.New("broker unavailable")
		}
		return nil
	}}
	p := NewOutboxPublisher(repo, writer, testOutboxConfig(), zap.NewNop())

	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "a poison message must not block the rest of the batch")

	assert.Nil(t, poison.ProcessedAt)
	assert.Equal(t, 1, poison.RetryCount)
	assert.Equal(t, "broker unavailable", poison.Error)
	assert.NotNil(t, healthy.ProcessedAt)
}

func TestPublishBatchRetriesUntilMaxThenParks(t *testing.T) {
	poison := outboxRow(models.EventPaymentCreated)
	repo := &memOutboxRepo{messages: []*models.OutboxMessage{poison}}
	writer := &fakeBusWriter{fail: func(msg kafka.Message) error {
		return errors.New("broker unavailable")
	}}
	p := NewOutboxPublisher(repo, writer, testOutboxConfig(), zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := p.PublishBatch(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 5, poison.RetryCount)

	// Past the retry budget the message waits for dead-letter handling.
	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 5, poison.RetryCount)
}

func TestPublishBatchHonorsBatchSize(t *testing.T) {
	repo := &memOutboxRepo{}
	for i := 0; i < 7; i++ {
		repo.messages = append(repo.messages, outboxRow(models.EventPaymentCreated))
	}
	cfg := testOutboxConfig()
	cfg.BatchSize = 5
	p := NewOutboxPublisher(repo, &fakeBusWriter{}, cfg, zap.NewNop())

	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	repo := &memOutboxRepo{messages: []*models.OutboxMessage{outboxRow(models.EventPaymentCreated)}}
	writer := &fakeBusWriter{}
	p := NewOutboxPublisher(repo, writer, testOutboxConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		writer.mu.Lock()
		defer writer.mu.Unlock()
		return len(writer.written) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after cancellation")
	}
}
