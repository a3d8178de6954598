package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is the instrument class used to pay.
type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodWallet       PaymentMethod = "wallet"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

// supportedCurrencies maps ISO-4217 codes to their fraction digits.
var supportedCurrencies = map[string]int32{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"KZT": 2,
	"RUB": 2,
	"JPY": 0,
}

// CurrencyScale returns the fraction digits for a supported currency.
func CurrencyScale(code string) (int32, bool) {
	scale, ok := supportedCurrencies[code]
	return scale, ok
}

// CardToken references a tokenized payment instrument. Raw PAN, CVV and
// expiry are never modeled.
type CardToken struct {
	Token       string `json:"token"`
	Last4Digits string `json:"last4_digits"`
	Brand       string `json:"brand"`
}

// NewCardToken validates the token reference.
func NewCardToken(token, last4, brand string) (*CardToken, error) {
	if token == "" {
		return nil, &ValidationError{Field: "card_token.token", Reason: "must not be empty"}
	}
	if len(last4) != 4 {
		return nil, &ValidationError{Field: "card_token.last4_digits", Reason: "must be exactly 4 digits"}
	}
	for _, r := range last4 {
		if r < '0' || r > '9' {
			return nil, &ValidationError{Field: "card_token.last4_digits", Reason: "must be exactly 4 digits"}
		}
	}
	return &CardToken{Token: token, Last4Digits: last4, Brand: brand}, nil
}

const (
	maxMetadataKeys     = 50
	maxMetadataKeyLen   = 100
	maxMetadataValueLen = 1000
)

// Metadata is a bounded passthrough map for provider-specific data. It is
// not consulted by business logic except for explicit overrides such as
// webhook_url.
type Metadata map[string]string

// Validate enforces size bounds and rejects markup that could be replayed
// into merchant dashboards.
func (m Metadata) Validate() error {
	if len(m) > maxMetadataKeys {
		return &ValidationError{Field: "metadata", Reason: "too many keys"}
	}
	for k, v := range m {
		if len(k) == 0 || len(k) > maxMetadataKeyLen {
			return &ValidationError{Field: "metadata", Reason: "key length out of bounds"}
		}
		if len(v) > maxMetadataValueLen {
			return &ValidationError{Field: "metadata", Reason: "value length out of bounds"}
		}
		if containsMarkup(k) || containsMarkup(v) {
			return &ValidationError{Field: "metadata", Reason: "markup is not allowed"}
		}
	}
	return nil
}

func containsMarkup(s string) bool {
	if strings.ContainsAny(s, "<>") {
		return true
	}
	return strings.Contains(strings.ToLower(s), "javascript:")
}

// Settlement records a best-effort conversion into the merchant's
// accounting currency after successful completion.
type Settlement struct {
	SettlementCurrency string          `json:"settlement_currency"`
	SettlementAmount   decimal.Decimal `json:"settlement_amount"`
	ExchangeRate       decimal.Decimal `json:"exchange_rate"`
	SettledAt          time.Time       `json:"settled_at"`
}
