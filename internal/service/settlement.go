package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/interfaces"
	"github.com/paygrid/payment-orchestrator/internal/models"
)

const (
	ratesSubject = "rates.convert"
	ratesTimeout = 5 * time.Second
)

type rateRequest struct {
	Amount string `json:"amount"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type rateResponse struct {
	ConvertedAmount string `json:"converted_amount"`
	Rate            string `json:"rate"`
}

// natsRateSource asks the external rate service over NATS request/reply.
type natsRateSource struct {
	nc *nats.Conn
}

func NewNATSRateSource(nc *nats.Conn) interfaces.RateSource {
	return &natsRateSource{nc: nc}
}

func (s *natsRateSource) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error) {
	reqJSON, _ := json.Marshal(rateRequest{Amount: amount.String(), From: from, To: to})

	ctx, cancel := context.WithTimeout(ctx, ratesTimeout)
	defer cancel()

	msg, err := s.nc.RequestWithContext(ctx, ratesSubject, reqJSON)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("rate lookup failed: %w", err)
	}

	var resp rateResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("malformed rate response: %w", err)
	}
	converted, err := decimal.NewFromString(resp.ConvertedAmount)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("malformed converted amount: %w", err)
	}
	rate, err := decimal.NewFromString(resp.Rate)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("malformed rate: %w", err)
	}
	return converted, rate, nil
}

// SettlementService converts a completed payment into the merchant's
// accounting currency. Strictly best effort: any failure is logged and the
// payment keeps its status.
type SettlementService struct {
	rates    interfaces.RateSource
	currency string
	logger   *zap.Logger
}

func NewSettlementService(rates interfaces.RateSource, settlementCurrency string, logger *zap.Logger) *SettlementService {
	return &SettlementService{rates: rates, currency: settlementCurrency, logger: logger}
}

// Settle attaches the settlement record to a freshly succeeded payment.
// Returns the conversion error for the caller to log; never fails the payment.
func (s *SettlementService) Settle(ctx context.Context, p *models.Payment) error {
	if s.rates == nil || s.currency == "" {
		return nil
	}
	if p.Currency == s.currency {
		p.AttachSettlement(models.Settlement{
			SettlementCurrency: s.currency,
			SettlementAmount:   p.Amount,
			ExchangeRate:       decimal.NewFromInt(1),
			SettledAt:          time.Now().UTC(),
		})
		return nil
	}

	converted, rate, err := s.rates.Convert(ctx, p.Amount, p.Currency, s.currency)
	if err != nil {
		s.logger.Warn("Settlement conversion failed",
			zap.String("payment_id", p.ID.String()),
			zap.String("from", p.Currency),
			zap.String("to", s.currency),
			zap.Error(err),
		)
		return err
	}

	p.AttachSettlement(models.Settlement{
		SettlementCurrency: s.currency,
		SettlementAmount:   converted,
		ExchangeRate:       rate,
		SettledAt:          time.Now().UTC(),
	})
	return nil
}
