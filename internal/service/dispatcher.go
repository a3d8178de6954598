package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/paygrid/payment-orchestrator/internal/interfaces"
	"github.com/paygrid/payment-orchestrator/internal/models"
	"github.com/paygrid/payment-orchestrator/internal/providers"
	"github.com/paygrid/payment-orchestrator/internal/telemetry"
)

// DispatcherConfig tunes the resilience policies around provider calls.
type DispatcherConfig struct {
	// CallTimeout is the hard per-attempt ceiling; it cancels the in-flight call.
	CallTimeout time.Duration
	// MaxRetries is the number of retries after the first attempt. Only
	// transient failures are retried, never explicit declines.
	MaxRetries uint64
	// InitialBackoff doubles per retry up to MaxBackoff, without jitter.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		CallTimeout:    30 * time.Second,
		MaxRetries:     2, // 3 attempts total
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     8 * time.Second,
	}
}

// Dispatcher wraps every outbound provider call with timeout, retry and
// circuit-breaker policies, in that order, and returns the uniform result.
type Dispatcher struct {
	registry *providers.Registry
	breaker  *CircuitBreaker
	cfg      DispatcherConfig
	logger   *zap.Logger
}

func NewDispatcher(registry *providers.Registry, breaker *CircuitBreaker, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		breaker:  breaker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Supports reports whether an adapter is registered for the provider.
func (d *Dispatcher) Supports(provider string) bool {
	_, ok := d.registry.Adapter(provider)
	return ok
}

// Dispatch invokes the payment's provider adapter. A fast models.ErrCircuitOpen
// means the provider was never contacted; a models.ErrProviderUnavailable
// wrap means every retry was exhausted against a live circuit.
func (d *Dispatcher) Dispatch(ctx context.Context, p *models.Payment) (*interfaces.PaymentResult, error) {
	adapter, ok := d.registry.Adapter(p.Provider)
	if !ok {
		return nil, &models.ValidationError{Field: "provider", Reason: "unknown provider " + p.Provider}
	}

	if !d.breaker.Allow(p.Provider) {
		telemetry.DispatchDuration.WithLabelValues(p.Provider, "circuit_open").Observe(0)
		return nil, models.ErrCircuitOpen
	}

	ctx, span := telemetry.Tracer.Start(ctx, "provider.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.id", p.ID.String()),
		attribute.String("payment.provider", p.Provider),
	)

	var result *interfaces.PaymentResult

	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()

		start := time.Now()
		res, err := adapter.Dispatch(callCtx, p)
		elapsed := time.Since(start)

		if err != nil {
			// Network errors and timeouts qualify for retry and count
			// against the circuit.
			d.breaker.RecordFailure(p.Provider)
			telemetry.DispatchDuration.WithLabelValues(p.Provider, "transient_error").Observe(elapsed.Seconds())
			d.logger.Warn("Provider dispatch attempt failed",
				zap.String("payment_id", p.ID.String()),
				zap.String("provider", p.Provider),
				zap.Error(err),
			)
			return err
		}

		d.breaker.RecordSuccess(p.Provider)
		result = res
		telemetry.DispatchDuration.WithLabelValues(p.Provider, dispatchOutcome(res)).Observe(elapsed.Seconds())
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.InitialBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = d.cfg.MaxBackoff
	policy.MaxElapsedTime = 0

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, d.cfg.MaxRetries), ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: retries exhausted: %v", models.ErrProviderUnavailable, err)
	}
	return result, nil
}

func dispatchOutcome(res *interfaces.PaymentResult) string {
	switch {
	case res.Pending:
		return "pending"
	case res.Success:
		return "success"
	default:
		return "declined"
	}
}
