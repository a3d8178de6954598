package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(t *testing.T) *Payment {
	t.Helper()
	p, err := NewPayment("merchant-1", "order-1", dec("100.00"), "USD", MethodCard, "sandbox", nil, nil, nil)
	require.NoError(t, err)
	return p
}

func TestNewPaymentValidation(t *testing.T) {
	cases := []struct {
		name string
		fn   func() (*Payment, error)
	}{
		{"zero amount", func() (*Payment, error) {
			return NewPayment("m", "o", dec("0"), "USD", MethodCard, "sandbox", nil, nil, nil)
		}},
		{"negative amount", func() (*Payment, error) {
			return NewPayment("m", "o", dec("-5.00"), "USD", MethodCard, "sandbox", nil, nil, nil)
		}},
		{"unsupported currency", func() (*Payment, error) {
			return NewPayment("m", "o", dec("5.00"), "XXX", MethodCard, "sandbox", nil, nil, nil)
		}},
		{"precision beyond currency scale", func() (*Payment, error) {
			return NewPayment("m", "o", dec("5.001"), "USD", MethodCard, "sandbox", nil, nil, nil)
		}},
		{"empty merchant", func() (*Payment, error) {
			return NewPayment("", "o", dec("5.00"), "USD", MethodCard, "sandbox", nil, nil, nil)
		}},
		{"empty order", func() (*Payment, error) {
			return NewPayment("m", "", dec("5.00"), "USD", MethodCard, "sandbox", nil, nil, nil)
		}},
		{"empty provider", func() (*Payment, error) {
			return NewPayment("m", "o", dec("5.00"), "USD", MethodCard, "", nil, nil, nil)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.fn()
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestNewPaymentStartsInitiatedWithCreatedEvent(t *testing.T) {
	p := newTestPayment(t)
	assert.Equal(t, StatusInitiated, p.Status)
	require.Len(t, p.Events(), 1)
	assert.Equal(t, EventPaymentCreated, p.Events()[0].Type)
	assert.Equal(t, int64(1), p.Version)
}

func TestPaymentLifecycleHappyPath(t *testing.T) {
	p := newTestPayment(t)
	p.ClearEvents()

	require.NoError(t, p.Process())
	assert.Equal(t, StatusProcessing, p.Status)

	require.NoError(t, p.Complete("txn-1"))
	assert.Equal(t, StatusSucceeded, p.Status)
	assert.Equal(t, "txn-1", p.TransactionID)

	require.Len(t, p.Events(), 2)
	assert.Equal(t, EventPaymentProcessing, p.Events()[0].Type)
	assert.Equal(t, EventPaymentSucceeded, p.Events()[1].Type)
}

func TestPaymentFailIsIdempotent(t *testing.T) {
	p := newTestPayment(t)
	p.ClearEvents()

	require.NoError(t, p.Fail("card_declined"))
	assert.Equal(t, StatusFailed, p.Status)
	assert.Equal(t, "card_declined", p.FailureReason)
	require.Len(t, p.Events(), 1)

	// Redelivery must not error, change the reason, or raise more events.
	require.NoError(t, p.Fail("other_reason"))
	assert.Equal(t, "card_declined", p.FailureReason)
	assert.Len(t, p.Events(), 1)
}

func TestPaymentRefundPath(t *testing.T) {
	p := newTestPayment(t)
	require.NoError(t, p.Process())
	require.NoError(t, p.Complete("txn-1"))

	require.NoError(t, p.PartialRefund(dec("40.00"), "rf-1"))
	assert.Equal(t, StatusPartiallyRefunded, p.Status)

	require.NoError(t, p.Refund("rf-2"))
	assert.Equal(t, StatusRefunded, p.Status)
}

func TestPartialRefundBounds(t *testing.T) {
	p := newTestPayment(t)
	require.NoError(t, p.Process())
	require.NoError(t, p.Complete("txn-1"))

	var validationErr *ValidationError
	require.ErrorAs(t, p.PartialRefund(dec("0"), ""), &validationErr)
	require.ErrorAs(t, p.PartialRefund(dec("100.00"), ""), &validationErr)
	require.ErrorAs(t, p.PartialRefund(dec("150.00"), ""), &validationErr)
	assert.Equal(t, StatusSucceeded, p.Status)
}

func TestPaymentRejectsIllegalTriggers(t *testing.T) {
	p := newTestPayment(t)
	require.NoError(t, p.Process())
	require.NoError(t, p.Complete("txn-1"))

	var transitionErr *InvalidTransitionError
	require.ErrorAs(t, p.Cancel(), &transitionErr)
	require.ErrorAs(t, p.Process(), &transitionErr)
	assert.Equal(t, StatusSucceeded, p.Status)
}

func TestNewCardToken(t *testing.T) {
	token, err := NewCardToken("tok_abc", "4242", "visa")
	require.NoError(t, err)
	assert.Equal(t, "4242", token.Last4Digits)

	_, err = NewCardToken("tok_abc", "424", "visa")
	assert.Error(t, err)
	_, err = NewCardToken("tok_abc", "42ab", "visa")
	assert.Error(t, err)
	_, err = NewCardToken("", "4242", "visa")
	assert.Error(t, err)
}

func TestMetadataValidation(t *testing.T) {
	require.NoError(t, Metadata{"color": "blue"}.Validate())

	tooMany := Metadata{}
	for i := 0; i < 51; i++ {
		tooMany[strings.Repeat("k", i+1)] = "v"
	}
	assert.Error(t, tooMany.Validate())

	assert.Error(t, Metadata{strings.Repeat("k", 101): "v"}.Validate())
	assert.Error(t, Metadata{"k": strings.Repeat("v", 1001)}.Validate())
	assert.Error(t, Metadata{"k": "<script>alert(1)</script>"}.Validate())
	assert.Error(t, Metadata{"k": "javascript:void(0)"}.Validate())
}
