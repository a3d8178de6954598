package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/interfaces"
	"github.com/paygrid/payment-orchestrator/internal/models"
	"github.com/paygrid/payment-orchestrator/internal/telemetry"
)

// CreatePaymentRequest is the validated input for payment creation.
type CreatePaymentRequest struct {
	MerchantID       string
	OrderID          string
	Amount           decimal.Decimal
	Currency         string
	Method           models.PaymentMethod
	Provider         string
	CardToken        *models.CardToken
	Metadata         models.Metadata
	SystemFeePercent *decimal.Decimal
	SplitAccounts    []models.SplitAccount
}

// statusNotifier is the outbound notification hook; nil disables it.
type statusNotifier interface {
	NotifyStatusChange(p *models.Payment, eventType string)
}

// Orchestrator drives payments through their lifecycle: idempotent creation,
// provider dispatch, terminal transitions, settlement and event publication.
type Orchestrator struct {
	payments   interfaces.PaymentRepository
	gate       *IdempotencyGate
	dispatcher *Dispatcher
	settlement *SettlementService
	notifier   statusNotifier
	logger     *zap.Logger
}

func NewOrchestrator(
	payments interfaces.PaymentRepository,
	gate *IdempotencyGate,
	dispatcher *Dispatcher,
	settlement *SettlementService,
	notifier statusNotifier,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		payments:   payments,
		gate:       gate,
		dispatcher: dispatcher,
		settlement: settlement,
		notifier:   notifier,
		logger:     logger,
	}
}

// CreatePayment applies the idempotency gate, creates the aggregate with its
// split and dispatches it to the provider. Reused keys return the prior
// payment without side effects; reused keys with a different payload are a
// conflict.
func (o *Orchestrator) CreatePayment(ctx context.Context, req *CreatePaymentRequest, idempotencyKey string) (*models.Payment, error) {
	if !o.dispatcher.Supports(req.Provider) {
		return nil, &models.ValidationError{Field: "provider", Reason: "unknown provider " + req.Provider}
	}

	requestHash := RequestHash(req)

	// Two passes: a creator losing the storage-level uniqueness race
	// re-admits and returns the winner's payment.
	for attempt := 0; attempt < 2; attempt++ {
		admission, err := o.gate.Admit(ctx, idempotencyKey, requestHash)
		if err != nil {
			return nil, err
		}
		switch admission.Outcome {
		case AdmitConflict:
			return nil, models.ErrIdempotencyConflict
		case AdmitDuplicate:
			return o.payments.GetByID(ctx, admission.PaymentID)
		}

		p, err := o.buildPayment(req)
		if err != nil {
			return nil, err
		}
		idem, err := models.NewIdempotentRequest(idempotencyKey, requestHash, p.ID, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		events := p.Events()
		outbox, err := models.OutboxFromEvents(events)
		if err != nil {
			return nil, err
		}
		p.ClearEvents()

		if err := o.payments.Create(ctx, p, idem, outbox); err != nil {
			if errors.Is(err, models.ErrAlreadyExists) {
				continue
			}
			return nil, err
		}

		telemetry.PaymentsCreated.WithLabelValues(p.Provider).Inc()
		o.logger.Info("Payment created",
			zap.String("payment_id", p.ID.String()),
			zap.String("merchant_id", p.MerchantID),
			zap.String("order_id", p.OrderID),
			zap.String("provider", p.Provider),
			zap.String("amount", p.Amount.String()),
			zap.String("currency", p.Currency),
		)
		o.notify(p, events)

		return o.Process(ctx, p.ID)
	}

	return nil, models.ErrAlreadyExists
}

// Process moves the payment into PROCESSING and dispatches it. Calling it on
// a payment already past PROCESSING is rejected by the state machine; calling
// it on one sitting in PROCESSING is a no-op that does not re-dispatch.
func (o *Orchestrator) Process(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, changed, err := o.mutate(ctx, id, func(p *models.Payment) error {
		return p.Process()
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return p, nil
	}
	return o.runDispatch(ctx, p)
}

// Complete marks the payment succeeded and runs best-effort settlement.
// Redelivered completions are idempotent no-ops.
func (o *Orchestrator) Complete(ctx context.Context, id uuid.UUID, transactionID string) (*models.Payment, error) {
	p, _, err := o.mutate(ctx, id, func(p *models.Payment) error {
		if err := p.Complete(transactionID); err != nil {
			return err
		}
		if len(p.Events()) > 0 {
			o.settle(ctx, p)
		}
		return nil
	})
	return p, err
}

// Fail marks the payment failed with a reason. Idempotent on redelivery.
func (o *Orchestrator) Fail(ctx context.Context, id uuid.UUID, reason string) (*models.Payment, error) {
	p, _, err := o.mutate(ctx, id, func(p *models.Payment) error {
		return p.Fail(reason)
	})
	return p, err
}

// Cancel aborts a payment that has not reached the provider.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	p, _, err := o.mutate(ctx, id, func(p *models.Payment) error {
		return p.Cancel()
	})
	return p, err
}

// Refund fully refunds a succeeded or partially refunded payment.
func (o *Orchestrator) Refund(ctx context.Context, id uuid.UUID, transactionID string) (*models.Payment, error) {
	p, _, err := o.mutate(ctx, id, func(p *models.Payment) error {
		return p.Refund(transactionID)
	})
	return p, err
}

// PartialRefund refunds part of a succeeded payment.
func (o *Orchestrator) PartialRefund(ctx context.Context, id uuid.UUID, amount decimal.Decimal, transactionID string) (*models.Payment, error) {
	p, _, err := o.mutate(ctx, id, func(p *models.Payment) error {
		return p.PartialRefund(amount, transactionID)
	})
	return p, err
}

// GetPayment loads a payment by id.
func (o *Orchestrator) GetPayment(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	return o.payments.GetByID(ctx, id)
}

func (o *Orchestrator) buildPayment(req *CreatePaymentRequest) (*models.Payment, error) {
	scale, ok := models.CurrencyScale(req.Currency)
	if !ok {
		return nil, &models.ValidationError{Field: "currency", Reason: "unsupported currency"}
	}

	var split *models.SplitPayment
	var err error
	switch {
	case req.SystemFeePercent != nil && len(req.SplitAccounts) > 0:
		return nil, &models.ValidationError{Field: "split", Reason: "choose either a fee split or account shares, not both"}
	case req.SystemFeePercent != nil:
		split, err = models.NewFeeSplit(req.Amount, *req.SystemFeePercent, scale)
	case len(req.SplitAccounts) > 0:
		split, err = models.NewAccountSplit(req.Amount, scale, req.SplitAccounts)
	}
	if err != nil {
		return nil, err
	}

	return models.NewPayment(req.MerchantID, req.OrderID, req.Amount, req.Currency,
		req.Method, req.Provider, split, req.CardToken, req.Metadata)
}

// runDispatch calls the provider through the resilient dispatcher and applies
// the outcome. A circuit-open fast failure leaves the payment in PROCESSING
// for later reconciliation; exhausted retries fail it conclusively.
func (o *Orchestrator) runDispatch(ctx context.Context, p *models.Payment) (*models.Payment, error) {
	res, err := o.dispatcher.Dispatch(ctx, p)
	switch {
	case err == nil && res.Pending:
		p.SetTransactionID(res.TransactionID)
		if uerr := o.payments.Update(ctx, p, nil); uerr != nil {
			o.logger.Error("Failed to record pending transaction id",
				zap.String("payment_id", p.ID.String()),
				zap.Error(uerr),
			)
		}
		return p, nil

	case err == nil && res.Success:
		return o.Complete(ctx, p.ID, res.TransactionID)

	case err == nil:
		return o.Fail(ctx, p.ID, res.FailureReason)

	case errors.Is(err, models.ErrCircuitOpen):
		o.logger.Warn("Provider circuit open; payment awaits reconciliation",
			zap.String("payment_id", p.ID.String()),
			zap.String("provider", p.Provider),
		)
		return p, err

	case errors.Is(err, models.ErrProviderUnavailable):
		failed, ferr := o.Fail(ctx, p.ID, err.Error())
		if ferr != nil {
			return p, err
		}
		return failed, err

	default:
		return p, err
	}
}

func (o *Orchestrator) settle(ctx context.Context, p *models.Payment) {
	if o.settlement == nil {
		return
	}
	if err := o.settlement.Settle(ctx, p); err != nil {
		o.logger.Warn("Settlement failed; payment status unaffected",
			zap.String("payment_id", p.ID.String()),
			zap.Error(err),
		)
	}
}

// mutate runs the read-validate-write cycle under the optimistic version
// check, retrying when a concurrent writer wins. A no-op transition (the
// payment already sits where the trigger points) persists nothing.
func (o *Orchestrator) mutate(ctx context.Context, id uuid.UUID, fn func(p *models.Payment) error) (*models.Payment, bool, error) {
	for attempt := 0; attempt < 3; attempt++ {
		p, err := o.payments.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if err := fn(p); err != nil {
			return nil, false, err
		}

		events := p.Events()
		if len(events) == 0 {
			return p, false, nil
		}
		outbox, err := models.OutboxFromEvents(events)
		if err != nil {
			return nil, false, err
		}
		p.ClearEvents()

		if err := o.payments.Update(ctx, p, outbox); err != nil {
			if errors.Is(err, models.ErrVersionConflict) {
				continue
			}
			return nil, false, err
		}

		o.logger.Info("Payment state transition",
			zap.String("payment_id", p.ID.String()),
			zap.String("status", string(p.Status)),
		)
		o.notify(p, events)
		return p, true, nil
	}
	return nil, false, models.ErrVersionConflict
}

func (o *Orchestrator) notify(p *models.Payment, events []models.DomainEvent) {
	if o.notifier == nil {
		return
	}
	for _, ev := range events {
		o.notifier.NotifyStatusChange(p, ev.Type)
	}
}
