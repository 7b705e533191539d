// Package outbox implements the transactional outbox: events are written in
// the same database transaction as the aggregate and published afterwards.
package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// Message is one row of the outbox table. ID is assigned by the store.
type Message struct {
	ID            int64
	EventID       uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	// EventType mirrors RoutingKey today; it is stored separately so the
	// broker topology can change without rewriting history.
	EventType  string
	RoutingKey string
	Payload    json.RawMessage
	Metadata   json.RawMessage
	CreatedAt  time.Time

	PublishedAt *time.Time

	RetryCount  int
	NextRetryAt *time.Time
	LastError   *string

	DeadLetteredAt   *time.Time
	DeadLetterReason *string
}

// NewMessages serializes the events of one aggregate save.
func NewMessages(events []domain.DomainEvent) ([]*Message, error) {
	out := make([]*Message, len(events))
	for i, event := range events {
		msg, err := NewMessage(event)
		if err != nil {
			return nil, err
		}
		out[i] = msg
	}
	return out, nil
}

// NewMessage serializes one event. The payload is the event's own JSON and
// the metadata is stored beside it.
func NewMessage(event domain.DomainEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event.RoutingKey(), err)
	}
	meta, err := json.Marshal(event.Metadata())
	if err != nil {
		return nil, fmt.Errorf("encode %s metadata: %w", event.RoutingKey(), err)
	}
	return &Message{
		EventID:       event.EventID(),
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.RoutingKey(),
		RoutingKey:    event.RoutingKey(),
		Payload:       payload,
		Metadata:      meta,
		CreatedAt:     event.OccurredAt(),
	}, nil
}

// IsPublished reports whether the broker has acknowledged the message.
func (m *Message) IsPublished() bool { return m.PublishedAt != nil }

// Envelope builds the wire form. Metadata that fails to decode is left empty
// rather than blocking delivery.
func (m *Message) Envelope() *eventbus.Envelope {
	var meta domain.EventMetadata
	if len(m.Metadata) > 0 {
		_ = json.Unmarshal(m.Metadata, &meta)
	}
	return &eventbus.Envelope{
		EventID:       m.EventID,
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		RoutingKey:    m.RoutingKey,
		OccurredAt:    m.CreatedAt,
		Payload:       m.Payload,
		Metadata:      meta,
	}
}
