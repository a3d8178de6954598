package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is a domain event persisted in the same transaction as the
// state change it describes, awaiting publication to the message bus.
type OutboxMessage struct {
	ID          uuid.UUID
	EventType   string
	Payload     []byte
	Topic       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
	RetryCount  int
	Error       string
}

// NewOutboxMessage serializes a domain event into an outbox row.
func NewOutboxMessage(ev DomainEvent, topic string) (*OutboxMessage, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:        ev.ID,
		EventType: ev.Type,
		Payload:   payload,
		Topic:     topic,
		CreatedAt: ev.OccurredAt,
	}, nil
}

// OutboxFromEvents converts a drained event list into outbox rows.
func OutboxFromEvents(events []DomainEvent) ([]*OutboxMessage, error) {
	rows := make([]*OutboxMessage, 0, len(events))
	for _, ev := range events {
		row, err := NewOutboxMessage(ev, TopicPaymentEvents)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
