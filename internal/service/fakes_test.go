package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paygrid/payment-orchestrator/internal/interfaces"
	"github.com/paygrid/payment-orchestrator/internal/models"
)

// memStore is an in-memory stand-in for the Postgres repositories, enforcing
// the same uniqueness and version semantics.
type memStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.Payment
	idem     map[string]*models.IdempotentRequest
	outbox   []*models.OutboxMessage
}

func newMemStore() *memStore {
	return &memStore{
		payments: make(map[uuid.UUID]*models.Payment),
		idem:     make(map[string]*models.IdempotentRequest),
	}
}

func clonePayment(p *models.Payment) *models.Payment {
	cp := *p
	cp.ClearEvents()
	return &cp
}

func (s *memStore) Create(ctx context.Context, p *models.Payment, idem *models.IdempotentRequest, outbox []*models.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idem != nil {
		if _, exists := s.idem[idem.IdempotencyKey]; exists {
			return models.ErrAlreadyExists
		}
	}
	for _, existing := range s.payments {
		if existing.MerchantID == p.MerchantID && existing.OrderID == p.OrderID {
			return models.ErrAlreadyExists
		}
	}

	s.payments[p.ID] = clonePayment(p)
	if idem != nil {
		s.idem[idem.IdempotencyKey] = idem
	}
	s.outbox = append(s.outbox, outbox...)
	return nil
}

func (s *memStore) Update(ctx context.Context, p *models.Payment, outbox []*models.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.payments[p.ID]
	if !ok {
		return models.ErrNotFound
	}
	if existing.Version != p.Version {
		return models.ErrVersionConflict
	}

	cp := clonePayment(p)
	cp.Version++
	s.payments[p.ID] = cp
	p.Version++
	s.outbox = append(s.outbox, outbox...)
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clonePayment(p), nil
}

func (s *memStore) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.TransactionID == transactionID && transactionID != "" {
			return clonePayment(p), nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *memStore) GetByOrderID(ctx context.Context, merchantID, orderID string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.MerchantID == merchantID && p.OrderID == orderID {
			return clonePayment(p), nil
		}
	}
	return nil, models.ErrNotFound
}

// Get implements interfaces.IdempotencyRepository.
func (s *memStore) Get(ctx context.Context, key string) (*models.IdempotentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.idem[key]
	if !ok {
		return nil, models.ErrNotFound
	}
	return req, nil
}

func (s *memStore) outboxEventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, len(s.outbox))
	for i, msg := range s.outbox {
		types[i] = msg.EventType
	}
	return types
}

// stubAdapter scripts provider behavior and counts dispatches.
type stubAdapter struct {
	name string
	fn   func(ctx context.Context, p *models.Payment) (*interfaces.PaymentResult, error)

	mu    sync.Mutex
	calls int
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Dispatch(ctx context.Context, p *models.Payment) (*interfaces.PaymentResult, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.fn(ctx, p)
}

func (a *stubAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// stubCallbackHandler scripts callback verification outcomes.
type stubCallbackHandler struct {
	result *interfaces.PaymentResult
	err    error
}

func (h *stubCallbackHandler) VerifyCallback(rawBody []byte, headers map[string]string) (*interfaces.PaymentResult, error) {
	return h.result, h.err
}

// stubRateSource converts with a fixed rate.
type stubRateSource struct {
	rate decimal.Decimal
	err  error
}

func (s *stubRateSource) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error) {
	if s.err != nil {
		return decimal.Zero, decimal.Zero, s.err
	}
	return amount.Mul(s.rate), s.rate, nil
}

// memOutboxRepo backs publisher tests.
type memOutboxRepo struct {
	mu       sync.Mutex
	messages []*models.OutboxMessage
}

func (r *memOutboxRepo) FetchUnprocessed(ctx context.Context, limit, maxRetries int) ([]*models.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.OutboxMessage
	for _, msg := range r.messages {
		if msg.ProcessedAt == nil && msg.RetryCount < maxRetries {
			out = append(out, msg)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memOutboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			now := msg.CreatedAt
			msg.ProcessedAt = &now
			return nil
		}
	}
	return models.ErrNotFound
}

func (r *memOutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			msg.RetryCount++
			msg.Error = reason
			return nil
		}
	}
	return models.ErrNotFound
}
