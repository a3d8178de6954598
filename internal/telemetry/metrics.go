package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PaymentsCreated counts created payments by provider.
	PaymentsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_created_total",
		Help: "Number of payments created, by provider.",
	}, []string{"provider"})

	// DispatchDuration observes provider dispatch latency by outcome.
	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_dispatch_duration_seconds",
		Help:    "Latency of provider dispatch calls.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"provider", "outcome"})

	// CircuitState exports breaker state per provider (0 closed, 1 open, 2 half-open).
	CircuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "provider_circuit_state",
		Help: "Circuit breaker state per provider: 0 closed, 1 open, 2 half-open.",
	}, []string{"provider"})

	// OutboxPublished counts successfully published outbox messages.
	OutboxPublished = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_published_total",
		Help: "Number of outbox messages published to the bus.",
	})

	// OutboxFailures counts failed publish attempts.
	OutboxFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Number of failed outbox publish attempts.",
	})

	// WebhookDeliveries counts outbound merchant notifications by result.
	WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "merchant_webhook_deliveries_total",
		Help: "Outbound merchant webhook deliveries, by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		PaymentsCreated,
		DispatchDuration,
		CircuitState,
		OutboxPublished,
		OutboxFailures,
		WebhookDeliveries,
	)
}
