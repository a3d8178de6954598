package models

import (
	"time"

	"github.com/google/uuid"
)

// TopicPaymentEvents is the bus topic carrying payment state changes.
const TopicPaymentEvents = "payment.state.changed"

const (
	EventPaymentCreated           = "payment.created"
	EventPaymentProcessing        = "payment.processing"
	EventPaymentSucceeded         = "payment.succeeded"
	EventPaymentFailed            = "payment.failed"
	EventPaymentCancelled         = "payment.cancelled"
	EventPaymentRefunded          = "payment.refunded"
	EventPaymentPartiallyRefunded = "payment.partially_refunded"
)

// DomainEvent is raised by aggregate methods during a unit of work and
// drained into the outbox on commit. It is never persisted on the aggregate.
type DomainEvent struct {
	ID         uuid.UUID      `json:"id"`
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// statusEvents maps a reached status to the event announcing it.
var statusEvents = map[PaymentStatus]string{
	StatusProcessing:        EventPaymentProcessing,
	StatusSucceeded:         EventPaymentSucceeded,
	StatusFailed:            EventPaymentFailed,
	StatusCancelled:         EventPaymentCancelled,
	StatusRefunded:          EventPaymentRefunded,
	StatusPartiallyRefunded: EventPaymentPartiallyRefunded,
}
