package eventbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	keys []string
	err  error

	mu   sync.Mutex
	seen []*eventbus.Envelope
}

func (h *recordingHandler) RoutingKeys() []string { return h.keys }

func (h *recordingHandler) Handle(_ context.Context, env *eventbus.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, env)
	return h.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func envelope(key string) *eventbus.Envelope {
	return &eventbus.Envelope{
		EventID:       uuid.New(),
		AggregateType: "SubscriptionTransaction",
		AggregateID:   uuid.New(),
		RoutingKey:    key,
		Payload:       json.RawMessage(`{"serial_number":"SUB1"}`),
	}
}

func TestInProcessBus_DispatchesByRoutingKey(t *testing.T) {
	bus := eventbus.NewInProcessBus(quietLogger())
	completed := &recordingHandler{keys: []string{"trading.subscription.completed"}}
	failed := &recordingHandler{keys: []string{"trading.subscription.failed"}}
	bus.Register(completed)
	bus.Register(failed)

	require.NoError(t, bus.Publish(context.Background(), envelope("trading.subscription.completed")))

	assert.Len(t, completed.seen, 1)
	assert.Empty(t, failed.seen)
}

func TestInProcessBus_HandlerErrorsDoNotFailPublish(t *testing.T) {
	bus := eventbus.NewInProcessBus(quietLogger())
	broken := &recordingHandler{keys: []string{"k"}, err: errors.New("boom")}
	healthy := &recordingHandler{keys: []string{"k"}}
	bus.Register(broken)
	bus.Register(healthy)

	require.NoError(t, bus.Publish(context.Background(), envelope("k")))
	assert.Len(t, broken.seen, 1)
	assert.Len(t, healthy.seen, 1)
}

func TestRegistry_DispatchJoinsErrors(t *testing.T) {
	reg := eventbus.NewRegistry(quietLogger())
	errA := errors.New("a")
	errB := errors.New("b")
	reg.Register(&recordingHandler{keys: []string{"k"}, err: errA})
	reg.Register(&recordingHandler{keys: []string{"k", "other"}, err: errB})

	err := reg.Dispatch(context.Background(), envelope("k"))
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, 3, reg.Count())
	assert.NoError(t, reg.Dispatch(context.Background(), envelope("nobody")))
}

func TestEnvelope_Decode(t *testing.T) {
	var body struct {
		SerialNumber string `json:"serial_number"`
	}
	require.NoError(t, envelope("k").Decode(&body))
	assert.Equal(t, "SUB1", body.SerialNumber)
}

func TestHandlerFunc(t *testing.T) {
	called := false
	h := eventbus.HandlerFunc{Keys: []string{"k"}, Fn: func(context.Context, *eventbus.Envelope) error {
		called = true
		return nil
	}}
	reg := eventbus.NewRegistry(quietLogger())
	reg.Register(h)

	require.NoError(t, reg.Dispatch(context.Background(), envelope("k")))
	assert.True(t, called)
}
