package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/paygrid/payment-orchestrator/internal/interfaces"
	"github.com/paygrid/payment-orchestrator/internal/models"
)

// Header names the sandbox (and real providers following the common scheme)
// attach to callbacks.
const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
)

// Sandbox is the built-in test provider. The outcome is steered by the
// payment's metadata: sandbox_outcome = decline | pending | error; anything
// else charges successfully.
type Sandbox struct {
	validator *SignatureValidator
}

func NewSandbox(secret string) *Sandbox {
	return &Sandbox{validator: NewSignatureValidator(secret)}
}

func (s *Sandbox) Name() string { return "sandbox" }

func (s *Sandbox) Dispatch(ctx context.Context, p *models.Payment) (*interfaces.PaymentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch p.Metadata["sandbox_outcome"] {
	case "decline":
		return &interfaces.PaymentResult{
			Success:       false,
			FailureReason: "card_declined",
		}, nil
	case "pending":
		return &interfaces.PaymentResult{
			Success:       true,
			Pending:       true,
			TransactionID: "snd_" + uuid.NewString(),
		}, nil
	case "error":
		return nil, fmt.Errorf("sandbox: simulated network error")
	default:
		return &interfaces.PaymentResult{
			Success:       true,
			TransactionID: "snd_" + uuid.NewString(),
		}, nil
	}
}

// sandboxCallback is the payload the sandbox posts back for pending charges.
type sandboxCallback struct {
	TransactionID string `json:"transaction_id"`
	OrderID       string `json:"order_id"`
	MerchantID    string `json:"merchant_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// VerifyCallback checks the HMAC signature and freshness window, then parses
// the callback into the uniform result.
func (s *Sandbox) VerifyCallback(rawBody []byte, headers map[string]string) (*interfaces.PaymentResult, error) {
	if err := s.validator.Verify(rawBody, headers[HeaderSignature], headers[HeaderTimestamp]); err != nil {
		return nil, err
	}

	var cb sandboxCallback
	if err := json.Unmarshal(rawBody, &cb); err != nil {
		return nil, fmt.Errorf("sandbox: malformed callback: %w", err)
	}

	return &interfaces.PaymentResult{
		Success:       cb.Status == "succeeded",
		TransactionID: cb.TransactionID,
		FailureReason: cb.FailureReason,
		Metadata: map[string]string{
			"order_id":    cb.OrderID,
			"merchant_id": cb.MerchantID,
		},
	}, nil
}
