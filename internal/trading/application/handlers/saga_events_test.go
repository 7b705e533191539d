package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/fundsaga/internal/trading/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaEventLogger_Escalation(t *testing.T) {
	var buf bytes.Buffer
	h := NewSagaEventLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	payload, err := json.Marshal(map[string]any{
		"serial_number": "SUB1",
		"last_state":    "FREEZE_COMPLETED",
		"attempts":      10,
		"reason":        "unfreeze: down",
	})
	require.NoError(t, err)

	err = h.Handle(context.Background(), &eventbus.Envelope{
		EventID:    uuid.New(),
		RoutingKey: domain.RoutingKeyCompensationEscalated,
		Payload:    payload,
	})
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "manual intervention required", line["msg"])
	assert.Equal(t, "SUB1", line["serial_number"])
	assert.Equal(t, float64(10), line["attempts"])
}

func TestSagaEventLogger_RegistersOnBus(t *testing.T) {
	bus := eventbus.NewInProcessBus(nil)
	bus.Register(NewSagaEventLogger(nil))

	assert.Equal(t, 4, bus.Registry().Count())
	assert.Len(t, bus.Registry().Handlers(domain.RoutingKeySubscriptionFailed), 1)
}

func TestSagaEventLogger_BadPayload(t *testing.T) {
	h := NewSagaEventLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	err := h.Handle(context.Background(), &eventbus.Envelope{
		RoutingKey: domain.RoutingKeySubscriptionCompleted,
		Payload:    []byte("{"),
	})
	assert.Error(t, err)
}
