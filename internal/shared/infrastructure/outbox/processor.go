package outbox

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/fundsaga/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
)

// ProcessorConfig tunes the relay loop.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxRetries is the number of publish attempts before a message is
	// dead-lettered. Zero or less dead-letters on the first failure.
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
	// Retention is how long published rows are kept. Zero keeps them forever.
	Retention       time.Duration
	CleanupInterval time.Duration
}

// DefaultProcessorConfig returns the production defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     500 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: time.Second,
		RetryBackoffMax:  time.Minute,
		Retention:        7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Stats is a point-in-time view of the processor.
type Stats struct {
	IsRunning       bool
	PublishedCount  uint64
	FailedCount     uint64
	DeadCount       uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastProcessedAt *time.Time
	OldestMessageAt *time.Time
}

// Processor relays stored events to the broker. Delivery is at least once:
// a crash between Publish and MarkPublished resends the message.
type Processor struct {
	relay     Relay
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger
	metrics   observability.Metrics

	published atomic.Uint64
	failed    atomic.Uint64
	dead      atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr string
	errAt   *time.Time
	polled  *time.Time
	oldest  *time.Time
	lag     float64
}

// NewProcessor creates a processor over the relay side of the outbox.
func NewProcessor(relay Relay, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultProcessorConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultProcessorConfig().BatchSize
	}
	return &Processor{
		relay:     relay,
		publisher: publisher,
		config:    config,
		logger:    logger,
		metrics:   observability.NoopMetrics{},
	}
}

// WithMetrics sets the metrics sink.
func (p *Processor) WithMetrics(m observability.Metrics) *Processor {
	if m != nil {
		p.metrics = m
	}
	return p
}

// Start launches the polling loop. Calling Start on a running processor is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(loopCtx, p.done)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
	)
	return nil
}

// Stop cancels the loop and waits for the in-flight batch to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("outbox processor stopped")
}

// IsRunning reports whether the loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// ProcessOnce relays a single batch synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	return p.drain(ctx)
}

func (p *Processor) loop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	poll := time.NewTicker(p.config.PollInterval)
	defer poll.Stop()

	every := p.config.CleanupInterval
	if every <= 0 {
		every = time.Hour
	}
	purge := time.NewTicker(every)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if err := p.drain(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox batch failed", "error", err)
			}
		case <-purge.C:
			p.purge(ctx)
		}
	}
}

func (p *Processor) drain(ctx context.Context) error {
	batch, err := p.relay.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err.Error())
		return err
	}
	p.notePoll(batch)

	for _, msg := range batch {
		p.deliver(ctx, msg)
	}
	return nil
}

// deliver publishes one message and records the outcome on its row.
func (p *Processor) deliver(ctx context.Context, msg *Message) {
	env := msg.Envelope()
	log := p.logger.With(
		"outbox_id", msg.ID,
		"event_id", msg.EventID,
		"routing_key", msg.RoutingKey,
		"correlation_id", env.Metadata.CorrelationID,
	)

	pubErr := p.publisher.Publish(ctx, env)
	if pubErr == nil {
		if err := p.relay.MarkPublished(ctx, msg.ID); err != nil {
			log.Error("publish not recorded, message will be resent", "error", err)
			return
		}
		p.published.Add(1)
		p.metrics.Counter(observability.MetricEventsPublished, 1)
		return
	}

	reason := pubErr.Error()
	p.noteError(reason)
	attempt := msg.RetryCount + 1

	if attempt >= p.config.MaxRetries {
		log.Warn("dead-lettering message", "attempt", attempt, "error", pubErr)
		p.dead.Add(1)
		p.metrics.Counter(observability.MetricEventsDead, 1)
		if err := p.relay.MarkDead(ctx, msg.ID, reason); err != nil {
			log.Error("dead-letter not recorded", "error", err)
		}
		return
	}

	wait := p.backoff(attempt)
	log.Warn("publish failed, retrying later", "attempt", attempt, "retry_in", wait, "error", pubErr)
	p.failed.Add(1)
	p.metrics.Counter(observability.MetricEventsFailed, 1)
	if err := p.relay.MarkFailed(ctx, msg.ID, reason, time.Now().Add(wait)); err != nil {
		log.Error("retry not recorded", "error", err)
	}
}

// backoff doubles from the base per attempt and is capped at the max.
func (p *Processor) backoff(attempt int) time.Duration {
	base, ceiling := p.config.RetryBackoffBase, p.config.RetryBackoffMax
	if base <= 0 {
		base = time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	wait := base
	for ; attempt > 1 && wait < ceiling; attempt-- {
		wait *= 2
	}
	return min(wait, ceiling)
}

func (p *Processor) purge(ctx context.Context) {
	if p.config.Retention <= 0 {
		return
	}
	n, err := p.relay.DeleteOld(ctx, time.Now().Add(-p.config.Retention))
	switch {
	case err != nil:
		p.logger.Warn("outbox purge failed", "error", err)
	case n > 0:
		p.logger.Info("purged published outbox messages", "count", n)
	}
}

// GetStats returns current processor statistics.
func (p *Processor) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		IsRunning:       p.cancel != nil,
		PublishedCount:  p.published.Load(),
		FailedCount:     p.failed.Load(),
		DeadCount:       p.dead.Load(),
		LagSeconds:      p.lag,
		LastError:       p.lastErr,
		LastErrorAt:     p.errAt,
		LastProcessedAt: p.polled,
		OldestMessageAt: p.oldest,
	}
}

func (p *Processor) noteError(reason string) {
	now := time.Now()
	p.mu.Lock()
	p.lastErr, p.errAt = reason, &now
	p.mu.Unlock()
}

// notePoll records lag as the age of the oldest message in the batch.
func (p *Processor) notePoll(batch []*Message) {
	now := time.Now()
	var oldest *time.Time
	for _, msg := range batch {
		if oldest == nil || msg.CreatedAt.Before(*oldest) {
			created := msg.CreatedAt
			oldest = &created
		}
	}
	lag := 0.0
	if oldest != nil {
		lag = now.Sub(*oldest).Seconds()
	}

	p.mu.Lock()
	p.polled, p.oldest, p.lag = &now, oldest, lag
	p.mu.Unlock()
	p.metrics.Gauge(observability.MetricOutboxLag, lag)
}
