package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is the topic exchange subscription events are published to.
const DefaultExchange = "fundsaga.trading.events"

// ErrNacked is returned when the broker refuses a message.
var ErrNacked = errors.New("rabbitmq: message nacked by broker")

// RabbitMQPublisher publishes envelopes to a durable topic exchange with
// publisher confirms, so Publish returns only once the broker owns the message.
type RabbitMQPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger
}

// NewRabbitMQPublisher dials url, declares the exchange and enables confirms.
func NewRabbitMQPublisher(url, exchange string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := setupChannel(conn, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Info("rabbitmq publisher connected", "exchange", exchange)
	return &RabbitMQPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

func setupChannel(conn *amqp.Connection, exchange string) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	// durable topic exchange, not auto-deleted, not internal
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return ch, nil
}

// Publish sends env and waits for the broker's confirm. The channel is
// serialized because confirms are tracked per channel.
func (p *RabbitMQPublisher) Publish(ctx context.Context, env *Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, env.RoutingKey, false, false, toPublishing(env))
	if err != nil {
		return fmt.Errorf("publish %s: %w", env.RoutingKey, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", env.EventID, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNacked, env.EventID)
	}

	p.logger.Debug("event published",
		"routing_key", env.RoutingKey,
		"event_id", env.EventID,
		"bytes", len(env.Payload),
	)
	return nil
}

// toPublishing maps the envelope onto AMQP properties; the payload is the body.
func toPublishing(env *Envelope) amqp.Publishing {
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.EventID.String(),
		CorrelationId: env.Metadata.CorrelationID,
		Timestamp:     env.OccurredAt,
		Type:          env.RoutingKey,
		Headers: amqp.Table{
			"aggregate_type": env.AggregateType,
			"aggregate_id":   env.AggregateID.String(),
			"causation_id":   env.Metadata.CausationID,
			"actor":          env.Metadata.Actor,
		},
		Body: env.Payload,
	}
}

// Ping fails once the broker connection has dropped.
func (p *RabbitMQPublisher) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

// Close releases the channel and the connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if !p.conn.IsClosed() {
		errs = append(errs, p.conn.Close())
	}
	p.conn, p.ch = nil, nil
	p.logger.Info("rabbitmq publisher closed")
	return errors.Join(errs...)
}
