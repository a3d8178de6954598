package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the payment does not exist.
	ErrNotFound = errors.New("payment not found")

	// ErrIdempotencyConflict indicates an idempotency key was reused with a
	// different request payload.
	ErrIdempotencyConflict = errors.New("idempotency key reused with different payload")

	// ErrProviderUnavailable indicates the provider could not be reached:
	// either the circuit is open or all retry attempts were exhausted.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrCircuitOpen is returned when the circuit breaker rejects a dispatch
	// without contacting the provider. It wraps ErrProviderUnavailable.
	ErrCircuitOpen = fmt.Errorf("%w: circuit open", ErrProviderUnavailable)

	// ErrVersionConflict indicates a concurrent writer won the optimistic
	// concurrency check; the operation may be retried.
	ErrVersionConflict = errors.New("payment modified concurrently")

	// ErrAlreadyExists maps storage-layer unique constraint violations
	// (idempotency key, merchant/order pair).
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidSignature indicates a callback signature did not verify.
	ErrInvalidSignature = errors.New("invalid callback signature")

	// ErrStaleCallback indicates a callback timestamp outside the freshness window.
	ErrStaleCallback = errors.New("callback timestamp too old")
)

// ValidationError rejects a malformed request before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError is returned when the state machine rejects a trigger.
type InvalidTransitionError struct {
	From    PaymentStatus
	Trigger Trigger
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: cannot %s payment in state %s", e.Trigger, e.From)
}
