package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/interfaces"
	"github.com/paygrid/payment-orchestrator/internal/models"
	"github.com/paygrid/payment-orchestrator/internal/providers"
)

// paymentFinisher drives the same terminal transitions used for synchronous
// completion. Implemented by the Orchestrator.
type paymentFinisher interface {
	Complete(ctx context.Context, id uuid.UUID, transactionID string) (*models.Payment, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) (*models.Payment, error)
}

// Reconciler feeds asynchronous provider callbacks back into the state
// machine. A callback that fails verification never touches any payment; a
// callback that resolves no payment is logged and dropped, since the provider
// stops redelivering once it receives a 2xx.
type Reconciler struct {
	payments interfaces.PaymentRepository
	registry *providers.Registry
	finisher paymentFinisher
	logger   *zap.Logger
}

func NewReconciler(payments interfaces.PaymentRepository, registry *providers.Registry, finisher paymentFinisher, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		payments: payments,
		registry: registry,
		finisher: finisher,
		logger:   logger,
	}
}

// HandleCallback verifies the callback with the provider's registered
// handler, resolves the payment by transaction id then order id, and applies
// the terminal transition. Returns (nil, nil) for unresolvable callbacks.
func (r *Reconciler) HandleCallback(ctx context.Context, provider string, rawBody []byte, headers map[string]string) (*models.Payment, error) {
	handler, ok := r.registry.Callback(provider)
	if !ok {
		return nil, &models.ValidationError{Field: "provider", Reason: "no callback handler for provider " + provider}
	}

	result, err := handler.VerifyCallback(rawBody, headers)
	if err != nil {
		r.logger.Warn("Callback rejected",
			zap.String("provider", provider),
			zap.Error(err),
		)
		return nil, err
	}

	p, err := r.resolve(ctx, result)
	if err != nil {
		return nil, err
	}
	if p == nil {
		r.logger.Info("Callback resolved no payment; dropping",
			zap.String("provider", provider),
			zap.String("transaction_id", result.TransactionID),
		)
		return nil, nil
	}

	if result.Success {
		return r.finisher.Complete(ctx, p.ID, result.TransactionID)
	}
	return r.finisher.Fail(ctx, p.ID, result.FailureReason)
}

func (r *Reconciler) resolve(ctx context.Context, result *interfaces.PaymentResult) (*models.Payment, error) {
	if result.TransactionID != "" {
		p, err := r.payments.GetByTransactionID(ctx, result.TransactionID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	merchantID := result.Metadata["merchant_id"]
	orderID := result.Metadata["order_id"]
	if merchantID == "" || orderID == "" {
		return nil, nil
	}
	p, err := r.payments.GetByOrderID(ctx, merchantID, orderID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
