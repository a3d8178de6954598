package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment is the aggregate root. It is mutated only through the
// state-machine-guarded methods below and never deleted: corrections happen
// via refunds, not by rewriting history.
type Payment struct {
	ID            uuid.UUID
	OrderID       string
	MerchantID    string
	Amount        decimal.Decimal
	Currency      string
	Method        PaymentMethod
	Provider      string
	Status        PaymentStatus
	TransactionID string
	FailureReason string
	Split         *SplitPayment
	Settlement    *Settlement
	CardToken     *CardToken
	Metadata      Metadata
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time

	events []DomainEvent
}

// NewPayment validates the request data and builds the aggregate in
// INITIATED, raising the created event.
func NewPayment(merchantID, orderID string, amount decimal.Decimal, currency string,
	method PaymentMethod, provider string, split *SplitPayment, card *CardToken, metadata Metadata) (*Payment, error) {

	if merchantID == "" {
		return nil, &ValidationError{Field: "merchant_id", Reason: "must not be empty"}
	}
	if orderID == "" {
		return nil, &ValidationError{Field: "order_id", Reason: "must not be empty"}
	}
	scale, ok := CurrencyScale(currency)
	if !ok {
		return nil, &ValidationError{Field: "currency", Reason: "unsupported currency"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if amount.Exponent() < -scale {
		return nil, &ValidationError{Field: "amount", Reason: "precision exceeds currency scale"}
	}
	if method == "" {
		return nil, &ValidationError{Field: "payment_method", Reason: "must not be empty"}
	}
	if provider == "" {
		return nil, &ValidationError{Field: "provider", Reason: "must not be empty"}
	}
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	p := &Payment{
		ID:         uuid.New(),
		OrderID:    orderID,
		MerchantID: merchantID,
		Amount:     amount,
		Currency:   currency,
		Method:     method,
		Provider:   provider,
		Status:     StatusInitiated,
		Split:      split,
		CardToken:  card,
		Metadata:   metadata,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	p.record(EventPaymentCreated)
	return p, nil
}

// Process moves the payment into PROCESSING before provider dispatch.
func (p *Payment) Process() error {
	_, err := p.apply(TriggerProcess)
	return err
}

// Complete marks the payment SUCCEEDED with the provider's transaction id.
// Redelivered completions for an already succeeded payment are no-ops.
func (p *Payment) Complete(transactionID string) error {
	noop, err := p.apply(TriggerComplete)
	if err != nil || noop {
		return err
	}
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	return nil
}

// Fail marks the payment FAILED, recording the reason.
func (p *Payment) Fail(reason string) error {
	noop, err := p.apply(TriggerFail)
	if err != nil || noop {
		return err
	}
	p.FailureReason = reason
	return nil
}

// Cancel aborts a payment that has not reached the provider.
func (p *Payment) Cancel() error {
	_, err := p.apply(TriggerCancel)
	return err
}

// Refund fully refunds a succeeded or partially refunded payment.
func (p *Payment) Refund(transactionID string) error {
	noop, err := p.apply(TriggerRefund)
	if err != nil || noop {
		return err
	}
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	return nil
}

// PartialRefund refunds part of a succeeded payment.
func (p *Payment) PartialRefund(amount decimal.Decimal, transactionID string) error {
	if !amount.IsPositive() || amount.GreaterThanOrEqual(p.Amount) {
		return &ValidationError{Field: "refund_amount", Reason: "must be positive and less than the payment amount"}
	}
	noop, err := p.apply(TriggerPartialRefund)
	if err != nil || noop {
		return err
	}
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	return nil
}

// SetTransactionID records the provider reference for payments awaiting an
// asynchronous confirmation.
func (p *Payment) SetTransactionID(transactionID string) {
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	p.UpdatedAt = time.Now().UTC()
}

// AttachSettlement stores the converted settlement amounts. Best effort:
// only ever called after successful completion.
func (p *Payment) AttachSettlement(s Settlement) {
	p.Settlement = &s
	p.UpdatedAt = time.Now().UTC()
}

func (p *Payment) apply(trigger Trigger) (noop bool, err error) {
	next, noop, err := Apply(p.Status, trigger)
	if err != nil || noop {
		return noop, err
	}
	p.Status = next
	p.UpdatedAt = time.Now().UTC()
	if ev, ok := statusEvents[next]; ok {
		p.record(ev)
	}
	return false, nil
}

func (p *Payment) record(eventType string) {
	p.events = append(p.events, DomainEvent{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload: map[string]any{
			"payment_id":  p.ID.String(),
			"merchant_id": p.MerchantID,
			"order_id":    p.OrderID,
			"amount":      p.Amount.String(),
			"currency":    p.Currency,
			"provider":    p.Provider,
			"status":      string(p.Status),
		},
	})
}

// Events returns the transient domain events raised during this unit of work.
func (p *Payment) Events() []DomainEvent {
	return p.events
}

// ClearEvents drains the transient event list after the events are turned
// into outbox rows.
func (p *Payment) ClearEvents() {
	p.events = nil
}
