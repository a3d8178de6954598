package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/interfaces"
	"github.com/paygrid/payment-orchestrator/internal/models"
)

// Admission is the gate's verdict for an incoming idempotency key.
type Admission int

const (
	// AdmitFresh lets the caller proceed; the key has never been seen.
	AdmitFresh Admission = iota
	// AdmitDuplicate returns the prior payment without new side effects.
	AdmitDuplicate
	// AdmitConflict rejects a reused key carrying a different payload.
	AdmitConflict
)

// AdmissionResult carries the verdict plus the prior payment for duplicates.
type AdmissionResult struct {
	Outcome   Admission
	PaymentID uuid.UUID
}

// canonicalRequest fixes the field order of the economically meaningful
// request fields so the hash is deterministic.
type canonicalRequest struct {
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Method     string `json:"method"`
	Provider   string `json:"provider"`
	MerchantID string `json:"merchant_id"`
	OrderID    string `json:"order_id"`
}

// RequestHash computes the canonical digest of a create request.
func RequestHash(req *CreatePaymentRequest) string {
	canonical, _ := json.Marshal(canonicalRequest{
		Amount:     req.Amount.String(),
		Currency:   req.Currency,
		Method:     string(req.Method),
		Provider:   req.Provider,
		MerchantID: req.MerchantID,
		OrderID:    req.OrderID,
	})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// cachedAdmission is the redis fast-path record.
type cachedAdmission struct {
	RequestHash string    `json:"request_hash"`
	PaymentID   uuid.UUID `json:"payment_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IdempotencyGate deduplicates create requests by client-supplied key. The
// authoritative record is the idempotent_requests row written in the same
// transaction as the payment; redis only serves repeated reads faster.
type IdempotencyGate struct {
	repo   interfaces.IdempotencyRepository
	cache  *redis.Client
	logger *zap.Logger
}

func NewIdempotencyGate(repo interfaces.IdempotencyRepository, cache *redis.Client, logger *zap.Logger) *IdempotencyGate {
	return &IdempotencyGate{repo: repo, cache: cache, logger: logger}
}

// Admit resolves a key against the stored record: Fresh when unknown,
// Duplicate when the stored hash matches, Conflict when it differs.
func (g *IdempotencyGate) Admit(ctx context.Context, key, requestHash string) (AdmissionResult, error) {
	if rec, ok := g.cacheGet(ctx, key); ok {
		return verdict(rec.RequestHash, rec.PaymentID, requestHash), nil
	}

	stored, err := g.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return AdmissionResult{Outcome: AdmitFresh}, nil
		}
		return AdmissionResult{}, err
	}

	g.cacheSet(ctx, key, cachedAdmission{
		RequestHash: stored.RequestHash,
		PaymentID:   stored.PaymentID,
		ExpiresAt:   stored.ExpiresAt,
	})
	return verdict(stored.RequestHash, stored.PaymentID, requestHash), nil
}

func verdict(storedHash string, paymentID uuid.UUID, incomingHash string) AdmissionResult {
	if storedHash == incomingHash {
		return AdmissionResult{Outcome: AdmitDuplicate, PaymentID: paymentID}
	}
	return AdmissionResult{Outcome: AdmitConflict, PaymentID: paymentID}
}

func (g *IdempotencyGate) cacheGet(ctx context.Context, key string) (cachedAdmission, bool) {
	if g.cache == nil {
		return cachedAdmission{}, false
	}
	raw, err := g.cache.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			g.logger.Warn("Idempotency cache read failed", zap.Error(err))
		}
		return cachedAdmission{}, false
	}
	var rec cachedAdmission
	if err := json.Unmarshal(raw, &rec); err != nil {
		return cachedAdmission{}, false
	}
	return rec, true
}

func (g *IdempotencyGate) cacheSet(ctx context.Context, key string, rec cachedAdmission) {
	if g.cache == nil {
		return
	}
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return
	}
	raw, _ := json.Marshal(rec)
	if err := g.cache.Set(ctx, cacheKey(key), raw, ttl).Err(); err != nil {
		g.logger.Warn("Idempotency cache write failed", zap.Error(err))
	}
}

func cacheKey(key string) string {
	return fmt.Sprintf("idem:%s", key)
}
