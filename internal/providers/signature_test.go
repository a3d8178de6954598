package providers

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygrid/payment-orchestrator/internal/models"
)

func TestSignatureValidatorAcceptsValidSignature(t *testing.T) {
	v := NewSignatureValidator("secret")
	body := []byte(`{"status":"succeeded"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	require.NoError(t, v.Verify(body, v.Sign(body, ts), ts))
}

func TestSignatureValidatorRejectsTamperedBody(t *testing.T) {
	v := NewSignatureValidator("secret")
	body := []byte(`{"status":"succeeded"}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())
	sig := v.Sign(body, ts)

	err := v.Verify([]byte(`{"status":"failed"}`), sig, ts)
	assert.ErrorIs(t, err, models.ErrInvalidSignature)
}

func TestSignatureValidatorRejectsWrongSecret(t *testing.T) {
	signer := NewSignatureValidator("other-secret")
	v := NewSignatureValidator("secret")
	body := []byte(`{}`)
	ts := fmt.Sprintf("%d", time.Now().Unix())

	err := v.Verify(body, signer.Sign(body, ts), ts)
	assert.ErrorIs(t, err, models.ErrInvalidSignature)
}

func TestSignatureValidatorRejectsStaleTimestamp(t *testing.T) {
	v := NewSignatureValidator("secret")
	now := time.Now()
	v.now = func() time.Time { return now }

	body := []byte(`{}`)
	stale := fmt.Sprintf("%d", now.Add(-6*time.Minute).Unix())

	err := v.Verify(body, v.Sign(body, stale), stale)
	assert.ErrorIs(t, err, models.ErrStaleCallback)

	err = v.Verify(body, v.Sign(body, "garbage"), "garbage")
	assert.ErrorIs(t, err, models.ErrStaleCallback)
}

func TestSignatureValidatorAcceptsWithinFreshnessWindow(t *testing.T) {
	v := NewSignatureValidator("secret")
	now := time.Now()
	v.now = func() time.Time { return now }

	body := []byte(`{}`)
	recent := fmt.Sprintf("%d", now.Add(-4*time.Minute).Unix())
	require.NoError(t, v.Verify(body, v.Sign(body, recent), recent))
}

func signedHeaders(t *testing.T, s *Sandbox, body []byte) map[string]string {
	t.Helper()
	ts := fmt.Sprintf("%d", time.Now().Unix())
	return map[string]string{
		HeaderTimestamp: ts,
		HeaderSignature: s.validator.Sign(body, ts),
	}
}

func TestSandboxVerifyCallbackParsesResult(t *testing.T) {
	s := NewSandbox("secret")
	body, _ := json.Marshal(sandboxCallback{
		TransactionID: "snd_123",
		OrderID:       "order-1",
		MerchantID:    "merchant-1",
		Status:        "succeeded",
	})

	res, err := s.VerifyCallback(body, signedHeaders(t, s, body))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "snd_123", res.TransactionID)
	assert.Equal(t, "order-1", res.Metadata["order_id"])
	assert.Equal(t, "merchant-1", res.Metadata["merchant_id"])
}

func TestSandboxVerifyCallbackFailure(t *testing.T) {
	s := NewSandbox("secret")
	body, _ := json.Marshal(sandboxCallback{
		TransactionID: "snd_123",
		Status:        "failed",
		FailureReason: "insufficient_funds",
	})

	res, err := s.VerifyCallback(body, signedHeaders(t, s, body))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "insufficient_funds", res.FailureReason)
}

func TestSandboxVerifyCallbackRejectsMissingHeaders(t *testing.T) {
	s := NewSandbox("secret")
	_, err := s.VerifyCallback([]byte(`{}`), map[string]string{})
	assert.Error(t, err)
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Register(NewSandbox("secret"))

	adapter, ok := r.Adapter("sandbox")
	require.True(t, ok)
	assert.Equal(t, "sandbox", adapter.Name())

	// Sandbox supports callbacks, so it registers as a handler too.
	_, ok = r.Callback("sandbox")
	assert.True(t, ok)

	_, ok = r.Adapter("stripe")
	assert.False(t, ok)
	assert.Equal(t, []string{"sandbox"}, r.Names())
}
