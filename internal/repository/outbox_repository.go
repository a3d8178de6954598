package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/paygrid/payment-orchestrator/internal/models"
)

type OutboxRepository struct {
	db *sql.DB
}

func NewOutboxRepository(db *sql.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// FetchUnprocessed returns unpublished rows below the retry ceiling in
// creation order. Rows at the ceiling stay behind for dead-letter handling.
func (r *OutboxRepository) FetchUnprocessed(ctx context.Context, limit, maxRetries int) ([]*models.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, payload, topic, created_at, processed_at, retry_count, COALESCE(error, '')
		FROM outbox_messages
		WHERE processed_at IS NULL AND retry_count < $1
		ORDER BY created_at
		LIMIT $2
	`, maxRetries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.OutboxMessage
	for rows.Next() {
		var (
			msg         models.OutboxMessage
			processedAt sql.NullTime
		)
		if err := rows.Scan(&msg.ID, &msg.EventType, &msg.Payload, &msg.Topic,
			&msg.CreatedAt, &processedAt, &msg.RetryCount, &msg.Error); err != nil {
			return nil, err
		}
		if processedAt.Valid {
			msg.ProcessedAt = &processedAt.Time
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_messages SET processed_at = NOW() WHERE id = $1`, id)
	return err
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_messages SET retry_count = retry_count + 1, error = $1 WHERE id = $2`, reason, id)
	return err
}
