package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/paygrid/payment-orchestrator/internal/models"
)

const pqUniqueViolation = "23505"

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payments (
			id UUID PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL,
			merchant_id VARCHAR(255) NOT NULL,
			amount NUMERIC(20,4) NOT NULL,
			currency VARCHAR(3) NOT NULL,
			method VARCHAR(50) NOT NULL,
			provider VARCHAR(50) NOT NULL,
			status VARCHAR(50) NOT NULL,
			transaction_id VARCHAR(255),
			failure_reason TEXT,
			split JSONB,
			settlement JSONB,
			card_token JSONB,
			metadata JSONB,
			version BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT payments_merchant_order_key UNIQUE (merchant_id, order_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_transaction_id ON payments(transaction_id)`,
		`CREATE TABLE IF NOT EXISTS idempotent_requests (
			idempotency_key VARCHAR(128) PRIMARY KEY,
			payment_id UUID NOT NULL,
			request_hash VARCHAR(64) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS outbox_messages (
			id UUID PRIMARY KEY,
			event_type VARCHAR(100) NOT NULL,
			payload JSONB NOT NULL,
			topic VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ,
			retry_count INT NOT NULL DEFAULT 0,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_unprocessed ON outbox_messages(created_at) WHERE processed_at IS NULL`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// Create writes the payment, its idempotency row and the initial outbox rows
// in one transaction. Racing creates on the same idempotency key or the same
// (merchant, order) pair lose on the unique constraints and surface
// models.ErrAlreadyExists.
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment, idem *models.IdempotentRequest, outbox []*models.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	split, settlement, cardToken, metadata, err := marshalPaymentJSON(p)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, merchant_id, amount, currency, method, provider, status,
			transaction_id, failure_reason, split, settlement, card_token, metadata, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, p.ID, p.OrderID, p.MerchantID, p.Amount.String(), p.Currency, p.Method, p.Provider, p.Status,
		p.TransactionID, p.FailureReason, split, settlement, cardToken, metadata, p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO idempotent_requests (idempotency_key, payment_id, request_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, idem.IdempotencyKey, idem.PaymentID, idem.RequestHash, idem.CreatedAt, idem.ExpiresAt)
	if err != nil {
		return mapUniqueViolation(err)
	}

	if err := insertOutboxRows(ctx, tx, outbox); err != nil {
		return err
	}

	return tx.Commit()
}

// Update persists a state change plus its outbox rows, guarded by the
// optimistic version check. Zero affected rows means a concurrent writer won.
func (r *PaymentRepository) Update(ctx context.Context, p *models.Payment, outbox []*models.OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	split, settlement, cardToken, metadata, err := marshalPaymentJSON(p)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, transaction_id = $2, failure_reason = $3, split = $4, settlement = $5,
			card_token = $6, metadata = $7, updated_at = $8, version = version + 1
		WHERE id = $9 AND version = $10
	`, p.Status, p.TransactionID, p.FailureReason, split, settlement, cardToken, metadata,
		p.UpdatedAt, p.ID, p.Version)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrVersionConflict
	}

	if err := insertOutboxRows(ctx, tx, outbox); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.getOne(ctx, `WHERE transaction_id = $1`, transactionID)
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, merchantID, orderID string) (*models.Payment, error) {
	return r.getOne(ctx, `WHERE merchant_id = $1 AND order_id = $2`, merchantID, orderID)
}

func (r *PaymentRepository) getOne(ctx context.Context, where string, args ...any) (*models.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, merchant_id, amount, currency, method, provider, status,
			transaction_id, failure_reason, split, settlement, card_token, metadata, version, created_at, updated_at
		FROM payments `+where, args...)
	return scanPayment(row)
}

func scanPayment(row *sql.Row) (*models.Payment, error) {
	var (
		p          models.Payment
		amount     string
		txnID      sql.NullString
		reason     sql.NullString
		split      []byte
		settlement []byte
		cardToken  []byte
		metadata   []byte
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.MerchantID, &amount, &p.Currency, &p.Method, &p.Provider, &p.Status,
		&txnID, &reason, &split, &settlement, &cardToken, &metadata, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount for payment %s: %w", p.ID, err)
	}
	p.TransactionID = txnID.String
	p.FailureReason = reason.String

	if len(split) > 0 {
		p.Split = &models.SplitPayment{}
		if err := json.Unmarshal(split, p.Split); err != nil {
			return nil, err
		}
	}
	if len(settlement) > 0 {
		p.Settlement = &models.Settlement{}
		if err := json.Unmarshal(settlement, p.Settlement); err != nil {
			return nil, err
		}
	}
	if len(cardToken) > 0 {
		p.CardToken = &models.CardToken{}
		if err := json.Unmarshal(cardToken, p.CardToken); err != nil {
			return nil, err
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, err
		}
	}

	return &p, nil
}

func marshalPaymentJSON(p *models.Payment) (split, settlement, cardToken, metadata []byte, err error) {
	if p.Split != nil {
		if split, err = json.Marshal(p.Split); err != nil {
			return
		}
	}
	if p.Settlement != nil {
		if settlement, err = json.Marshal(p.Settlement); err != nil {
			return
		}
	}
	if p.CardToken != nil {
		if cardToken, err = json.Marshal(p.CardToken); err != nil {
			return
		}
	}
	if len(p.Metadata) > 0 {
		if metadata, err = json.Marshal(p.Metadata); err != nil {
			return
		}
	}
	return
}

func insertOutboxRows(ctx context.Context, tx *sql.Tx, outbox []*models.OutboxMessage) error {
	for _, msg := range outbox {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outbox_messages (id, event_type, payload, topic, created_at, retry_count)
			VALUES ($1, $2, $3, $4, $5, 0)
		`, msg.ID, msg.EventType, msg.Payload, msg.Topic, msg.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return fmt.Errorf("%w: %s", models.ErrAlreadyExists, pqErr.Constraint)
	}
	return err
}
