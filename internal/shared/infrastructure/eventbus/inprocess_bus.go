package eventbus

import (
	"context"
	"log/slog"
	"time"
)

// InProcessBus is a Publisher that dispatches synchronously to local
// handlers. It is used when no RabbitMQ URL is configured. Handler errors
// are logged and never fail the publish, so the outbox does not retry them.
type InProcessBus struct {
	registry *Registry
	logger   *slog.Logger
}

// NewInProcessBus creates a bus with an empty registry.
func NewInProcessBus(logger *slog.Logger) *InProcessBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &InProcessBus{
		registry: NewRegistry(logger),
		logger:   logger,
	}
}

// Register adds a handler.
func (b *InProcessBus) Register(h Handler) {
	b.registry.Register(h)
}

// Registry returns the underlying handler registry.
func (b *InProcessBus) Registry() *Registry {
	return b.registry
}

func (b *InProcessBus) Publish(ctx context.Context, env *Envelope) error {
	start := time.Now()
	if err := b.registry.Dispatch(ctx, env); err != nil {
		b.logger.ErrorContext(ctx, "event dispatch failed",
			"routing_key", env.RoutingKey,
			"event_id", env.EventID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return nil
	}
	b.logger.DebugContext(ctx, "event dispatched",
		"routing_key", env.RoutingKey,
		"event_id", env.EventID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (b *InProcessBus) Close() error {
	return nil
}
