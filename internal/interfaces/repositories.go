package interfaces

import (
	"context"

	"github.com/google/uuid"

	"github.com/paygrid/payment-orchestrator/internal/models"
)

// PaymentRepository persists the payment aggregate. Create and Update write
// the payment, its guarding idempotency row, and the drained outbox rows in
// a single transaction; Update additionally enforces the optimistic version
// check and returns models.ErrVersionConflict when a concurrent writer won.
type PaymentRepository interface {
	Create(ctx context.Context, p *models.Payment, idem *models.IdempotentRequest, outbox []*models.OutboxMessage) error
	Update(ctx context.Context, p *models.Payment, outbox []*models.OutboxMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	GetByOrderID(ctx context.Context, merchantID, orderID string) (*models.Payment, error)
}

// IdempotencyRepository reads stored idempotent requests. Rows are written
// only through PaymentRepository.Create; expired rows are ignored.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*models.IdempotentRequest, error)
}

// OutboxRepository feeds the publisher loop. FetchUnprocessed returns
// unpublished rows below the retry ceiling in creation order.
type OutboxRepository interface {
	FetchUnprocessed(ctx context.Context, limit, maxRetries int) ([]*models.OutboxMessage, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}
