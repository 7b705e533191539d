// Package eventbus delivers outbox events to RabbitMQ or to in-process handlers.
package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/google/uuid"
)

// Envelope is an event on the wire: routing facts plus the JSON body.
type Envelope struct {
	EventID       uuid.UUID            `json:"event_id"`
	AggregateType string               `json:"aggregate_type"`
	AggregateID   uuid.UUID            `json:"aggregate_id"`
	RoutingKey    string               `json:"routing_key"`
	OccurredAt    time.Time            `json:"occurred_at"`
	Payload       json.RawMessage      `json:"payload"`
	Metadata      domain.EventMetadata `json:"metadata"`
}

// Decode unmarshals the payload into v.
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Handler reacts to events with the given routing keys.
type Handler interface {
	RoutingKeys() []string
	Handle(ctx context.Context, env *Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	Keys []string
	Fn   func(ctx context.Context, env *Envelope) error
}

func (h HandlerFunc) RoutingKeys() []string { return h.Keys }

func (h HandlerFunc) Handle(ctx context.Context, env *Envelope) error { return h.Fn(ctx, env) }
