package interfaces

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paygrid/payment-orchestrator/internal/models"
)

// PaymentResult is the uniform outcome of a provider interaction. Callers
// never see provider-specific error types. Pending marks providers that
// accept the charge synchronously but confirm through a later callback.
type PaymentResult struct {
	Success       bool
	Pending       bool
	TransactionID string
	FailureReason string
	Metadata      map[string]string
}

// ProviderAdapter is the common contract implemented once per vendor. A
// dispatch error means the provider could not be reached (network, timeout);
// an explicit decline is a successful call with Success=false.
type ProviderAdapter interface {
	Name() string
	Dispatch(ctx context.Context, p *models.Payment) (*PaymentResult, error)
}

// CallbackHandler verifies and parses an asynchronous provider callback.
// Implemented only by providers that confirm asynchronously. Verification
// failures return models.ErrInvalidSignature or models.ErrStaleCallback.
type CallbackHandler interface {
	VerifyCallback(rawBody []byte, headers map[string]string) (*PaymentResult, error)
}

// RateSource converts an amount between currencies, returning the converted
// amount and the applied rate. Failures never abort the payment.
type RateSource interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (converted, rate decimal.Decimal, err error)
}

// DeliveryScheduler queues an outbound merchant notification with bounded
// retries. Delivery failures are logged and swallowed downstream.
type DeliveryScheduler interface {
	ScheduleDelivery(paymentID uuid.UUID, url, eventType string, payload []byte, maxRetries int) (deliveryID string, err error)
}
