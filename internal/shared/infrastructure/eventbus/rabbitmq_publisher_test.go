package eventbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestToPublishing(t *testing.T) {
	env := &Envelope{
		EventID:       uuid.New(),
		AggregateType: "SubscriptionTransaction",
		AggregateID:   uuid.New(),
		RoutingKey:    "trading.subscription.completed",
		OccurredAt:    time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
		Payload:       json.RawMessage(`{}`),
		Metadata:      domain.EventMetadata{CorrelationID: "corr-1", CausationID: "SUB1", Actor: "api"},
	}

	pub := toPublishing(env)

	assert.Equal(t, "application/json", pub.ContentType)
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, env.EventID.String(), pub.MessageId)
	assert.Equal(t, "corr-1", pub.CorrelationId)
	assert.Equal(t, "trading.subscription.completed", pub.Type)
	assert.Equal(t, env.OccurredAt, pub.Timestamp)
	assert.Equal(t, env.AggregateID.String(), pub.Headers["aggregate_id"])
	assert.Equal(t, "SUB1", pub.Headers["causation_id"])
	assert.Equal(t, []byte(`{}`), pub.Body)
}
