package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/models"
)

func settlementPayment(t *testing.T, currency string) *models.Payment {
	t.Helper()
	p, err := models.NewPayment("merchant-1", "order-1", sdec("100.00"), currency, models.MethodCard, "sandbox", nil, nil, nil)
	require.NoError(t, err)
	return p
}

func TestSettleSameCurrencySkipsConversion(t *testing.T) {
	rates := &stubRateSource{rate: sdec("0.5")}
	svc := NewSettlementService(rates, "USD", zap.NewNop())
	p := settlementPayment(t, "USD")

	require.NoError(t, svc.Settle(context.Background(), p))

	require.NotNil(t, p.Settlement)
	assert.Equal(t, "USD", p.Settlement.SettlementCurrency)
	assert.True(t, p.Settlement.SettlementAmount.Equal(sdec("100.00")))
	assert.True(t, p.Settlement.ExchangeRate.Equal(sdec("1")))
}

func TestSettleConvertsForeignCurrency(t *testing.T) {
	rates := &stubRateSource{rate: sdec("1.08")}
	svc := NewSettlementService(rates, "USD", zap.NewNop())
	p := settlementPayment(t, "EUR")

	require.NoError(t, svc.Settle(context.Background(), p))

	require.NotNil(t, p.Settlement)
	assert.Equal(t, "USD", p.Settlement.SettlementCurrency)
	assert.True(t, p.Settlement.SettlementAmount.Equal(sdec("108.00")), "got %s", p.Settlement.SettlementAmount)
	assert.True(t, p.Settlement.ExchangeRate.Equal(sdec("1.08")))
}

func TestSettleConversionFailureLeavesPaymentUntouched(t *testing.T) {
	rates := &stubRateSource{err: errors.New("rate service down")}
	svc := NewSettlementService(rates, "USD", zap.NewNop())
	p := settlementPayment(t, "EUR")

	err := svc.Settle(context.Background(), p)
	require.Error(t, err)
	assert.Nil(t, p.Settlement)
	assert.Equal(t, models.StatusInitiated, p.Status, "settlement must never change the payment status")
}

func TestSettleWithoutRateSourceIsNoOp(t *testing.T) {
	svc := NewSettlementService(nil, "USD", zap.NewNop())
	p := settlementPayment(t, "EUR")

	require.NoError(t, svc.Settle(context.Background(), p))
	assert.Nil(t, p.Settlement)
}
