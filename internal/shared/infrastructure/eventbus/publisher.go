package eventbus

import (
	"context"
	"log/slog"
)

// Publisher sends envelopes to a message broker.
type Publisher interface {
	Publish(ctx context.Context, env *Envelope) error
	Close() error
}

// LogPublisher only logs. It stands in when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs at debug level.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, env *Envelope) error {
	p.logger.DebugContext(ctx, "event published",
		"routing_key", env.RoutingKey,
		"event_id", env.EventID,
		"size", len(env.Payload),
	)
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
