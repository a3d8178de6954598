package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/paygrid/payment-orchestrator/internal/models"
)

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Get returns the stored request for a key, ignoring expired rows. Expired
// rows are swept by an external cleanup job, not here.
func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*models.IdempotentRequest, error) {
	var req models.IdempotentRequest
	err := r.db.QueryRowContext(ctx, `
		SELECT idempotency_key, payment_id, request_hash, created_at, expires_at
		FROM idempotent_requests
		WHERE idempotency_key = $1 AND expires_at > NOW()
	`, key).Scan(&req.IdempotencyKey, &req.PaymentID, &req.RequestHash, &req.CreatedAt, &req.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}
