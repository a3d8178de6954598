package service

import (
	"sync"
	"time"

	"github.com/paygrid/payment-orchestrator/internal/telemetry"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// breaker is the per-provider state. Lives in process memory only: a restart
// reopens from closed, an accepted trade-off over synchronizing breakers
// across instances.
type breaker struct {
	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
}

// CircuitBreaker tracks provider health and rejects dispatches to providers
// that keep failing. Only qualifying failures (network errors, timeouts)
// count; explicit business declines never trip the circuit.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	openFor   time.Duration
	now       func() time.Time
	providers map[string]*breaker
}

func NewCircuitBreaker(threshold int, openFor time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		openFor:   openFor,
		now:       time.Now,
		providers: make(map[string]*breaker),
	}
}

// Allow reports whether a dispatch to the provider may proceed. An open
// circuit past its cooldown half-opens and admits exactly one trial call.
func (cb *CircuitBreaker) Allow(provider string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.breakerFor(provider)
	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if cb.now().Sub(b.openedAt) >= cb.openFor {
			b.state = stateHalfOpen
			b.trialInFlight = true
			cb.export(provider, b)
			return true
		}
		return false
	case stateHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the circuit and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess(provider string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.breakerFor(provider)
	b.state = stateClosed
	b.consecutiveFailures = 0
	b.trialInFlight = false
	cb.export(provider, b)
}

// RecordFailure counts a qualifying failure. The circuit opens at the
// threshold, and a failed half-open trial reopens it immediately.
func (cb *CircuitBreaker) RecordFailure(provider string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.breakerFor(provider)
	switch b.state {
	case stateHalfOpen:
		b.state = stateOpen
		b.openedAt = cb.now()
		b.trialInFlight = false
	default:
		b.consecutiveFailures++
		if b.consecutiveFailures >= cb.threshold {
			b.state = stateOpen
			b.openedAt = cb.now()
		}
	}
	cb.export(provider, b)
}

func (cb *CircuitBreaker) breakerFor(provider string) *breaker {
	b, ok := cb.providers[provider]
	if !ok {
		b = &breaker{}
		cb.providers[provider] = b
	}
	return b
}

func (cb *CircuitBreaker) export(provider string, b *breaker) {
	telemetry.CircuitState.WithLabelValues(provider).Set(float64(b.state))
}
