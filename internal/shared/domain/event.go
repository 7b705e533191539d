package domain

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact recorded by an aggregate and relayed through the outbox.
type DomainEvent interface {
	EventID() uuid.UUID
	AggregateID() uuid.UUID
	AggregateType() string
	RoutingKey() string
	OccurredAt() time.Time
	Metadata() EventMetadata
}

// EventMetadata links an event to the request or job that caused it.
type EventMetadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	CausationID   string `json:"causation_id,omitempty"`
	Actor         string `json:"actor,omitempty"`
}

// EventHeader implements DomainEvent. Concrete events embed it and add
// their payload fields.
type EventHeader struct {
	id          uuid.UUID
	aggregateID uuid.UUID
	aggregate   string
	routingKey  string
	at          time.Time
	meta        EventMetadata
}

// NewEventHeader stamps a new event for the given aggregate.
func NewEventHeader(aggregateID uuid.UUID, aggregateType, routingKey string) EventHeader {
	return EventHeader{
		id:          uuid.New(),
		aggregateID: aggregateID,
		aggregate:   aggregateType,
		routingKey:  routingKey,
		at:          time.Now().UTC(),
	}
}

func (h EventHeader) EventID() uuid.UUID      { return h.id }
func (h EventHeader) AggregateID() uuid.UUID  { return h.aggregateID }
func (h EventHeader) AggregateType() string   { return h.aggregate }
func (h EventHeader) RoutingKey() string      { return h.routingKey }
func (h EventHeader) OccurredAt() time.Time   { return h.at }
func (h EventHeader) Metadata() EventMetadata { return h.meta }

// SetMetadata attaches correlation data before the event is stored.
func (h *EventHeader) SetMetadata(meta EventMetadata) {
	h.meta = meta
}
