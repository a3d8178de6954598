package models

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyTTL is how long a stored request guards its key. Expired rows
// are swept by an external cleanup job.
const IdempotencyTTL = 24 * time.Hour

const (
	minIdempotencyKeyLen = 16
	maxIdempotencyKeyLen = 128
)

// IdempotentRequest pins an idempotency key to the payment it created. It is
// written atomically with the payment and read-only afterward.
type IdempotentRequest struct {
	IdempotencyKey string
	PaymentID      uuid.UUID
	RequestHash    string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// NewIdempotentRequest validates the key and stamps the expiry window.
func NewIdempotentRequest(key, requestHash string, paymentID uuid.UUID, now time.Time) (*IdempotentRequest, error) {
	if len(key) < minIdempotencyKeyLen || len(key) > maxIdempotencyKeyLen {
		return nil, &ValidationError{Field: "idempotency_key", Reason: "length must be between 16 and 128 characters"}
	}
	if requestHash == "" {
		return nil, &ValidationError{Field: "request_hash", Reason: "must not be empty"}
	}
	return &IdempotentRequest{
		IdempotencyKey: key,
		PaymentID:      paymentID,
		RequestHash:    requestHash,
		CreatedAt:      now,
		ExpiresAt:      now.Add(IdempotencyTTL),
	}, nil
}
