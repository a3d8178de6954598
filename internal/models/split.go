package models

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SplitAccount is one beneficiary in a multi-account distribution.
// Default marks the account that absorbs the rounding remainder; when no
// account is marked, the first one does.
type SplitAccount struct {
	AccountType       string          `json:"account_type"`
	AccountIdentifier string          `json:"account_identifier"`
	Percentage        decimal.Decimal `json:"percentage"`
	Default           bool            `json:"default,omitempty"`
}

// SplitShare is a computed per-account amount.
type SplitShare struct {
	AccountType       string          `json:"account_type"`
	AccountIdentifier string          `json:"account_identifier"`
	Percentage        decimal.Decimal `json:"percentage"`
	Amount            decimal.Decimal `json:"amount"`
}

// SplitPayment is the distribution stored immutably on a payment. Exactly
// one of the two modes is populated: the simple owner/fee split, or the
// named multi-account shares.
type SplitPayment struct {
	SystemFeePercent decimal.Decimal `json:"system_fee_percent"`
	OwnerAmount      decimal.Decimal `json:"owner_amount"`
	SystemFeeAmount  decimal.Decimal `json:"system_fee_amount"`
	Shares           []SplitShare    `json:"shares,omitempty"`
}

// NewFeeSplit computes the simple split: the platform fee is total*pct/100
// rounded to the currency scale, the owner keeps the rest, so the two parts
// always sum to the total exactly.
func NewFeeSplit(total decimal.Decimal, feePercent decimal.Decimal, scale int32) (*SplitPayment, error) {
	if feePercent.IsNegative() || feePercent.GreaterThan(hundred) {
		return nil, &ValidationError{Field: "system_fee_percent", Reason: "must be between 0 and 100"}
	}
	fee := total.Mul(feePercent).Div(hundred).RoundBank(scale)
	return &SplitPayment{
		SystemFeePercent: feePercent,
		SystemFeeAmount:  fee,
		OwnerAmount:      total.Sub(fee),
	}, nil
}

// NewAccountSplit distributes a total across named accounts proportionally.
// Percentages must sum to exactly 100; each share is truncated to the
// currency scale and the remainder is assigned to the default account so the
// shares always sum to the total to the cent.
func NewAccountSplit(total decimal.Decimal, scale int32, accounts []SplitAccount) (*SplitPayment, error) {
	if len(accounts) == 0 {
		return nil, &ValidationError{Field: "split_accounts", Reason: "must not be empty"}
	}
	sum := decimal.Zero
	defaultIdx := 0
	for i, acc := range accounts {
		if acc.AccountIdentifier == "" {
			return nil, &ValidationError{Field: "split_accounts", Reason: "account identifier must not be empty"}
		}
		if acc.Percentage.IsNegative() {
			return nil, &ValidationError{Field: "split_accounts", Reason: "percentage must not be negative"}
		}
		if acc.Default {
			defaultIdx = i
		}
		sum = sum.Add(acc.Percentage)
	}
	if !sum.Equal(hundred) {
		return nil, &ValidationError{Field: "split_accounts", Reason: "percentages must sum to exactly 100"}
	}

	shares := make([]SplitShare, len(accounts))
	allocated := decimal.Zero
	for i, acc := range accounts {
		amount := total.Mul(acc.Percentage).Div(hundred).Truncate(scale)
		shares[i] = SplitShare{
			AccountType:       acc.AccountType,
			AccountIdentifier: acc.AccountIdentifier,
			Percentage:        acc.Percentage,
			Amount:            amount,
		}
		allocated = allocated.Add(amount)
	}
	if remainder := total.Sub(allocated); !remainder.IsZero() {
		shares[defaultIdx].Amount = shares[defaultIdx].Amount.Add(remainder)
	}

	return &SplitPayment{Shares: shares}, nil
}
