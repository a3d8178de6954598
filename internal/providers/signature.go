package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/paygrid/payment-orchestrator/internal/models"
)

// CallbackFreshness is the maximum accepted age of a callback timestamp.
const CallbackFreshness = 5 * time.Minute

// SignatureValidator verifies the HMAC-SHA256 signature providers compute
// over "<unix timestamp>.<raw body>".
type SignatureValidator struct {
	secret []byte
	now    func() time.Time
}

func NewSignatureValidator(secret string) *SignatureValidator {
	return &SignatureValidator{secret: []byte(secret), now: time.Now}
}

// Verify checks freshness first, then the signature. Neither failure touches
// any payment.
func (v *SignatureValidator) Verify(rawBody []byte, signature, timestamp string) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: unparseable timestamp", models.ErrStaleCallback)
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age > CallbackFreshness || age < -CallbackFreshness {
		return models.ErrStaleCallback
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return models.ErrInvalidSignature
	}
	return nil
}

// Sign produces the signature a provider (or test) would attach.
func (v *SignatureValidator) Sign(rawBody []byte, timestamp string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
