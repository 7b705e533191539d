package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Registry maps routing keys to handlers.
type Registry struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Register adds h for each of its routing keys.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range h.RoutingKeys() {
		r.handlers[key] = append(r.handlers[key], h)
	}
}

// Handlers returns the handlers registered for key.
func (r *Registry) Handlers(key string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[key]
}

// Dispatch calls every handler for the envelope's routing key. All handlers
// run even if one fails; their errors are joined.
func (r *Registry) Dispatch(ctx context.Context, env *Envelope) error {
	var errs []error
	for _, h := range r.Handlers(env.RoutingKey) {
		if err := h.Handle(ctx, env); err != nil {
			r.logger.ErrorContext(ctx, "event handler failed",
				"routing_key", env.RoutingKey,
				"event_id", env.EventID,
				"error", err,
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of registrations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, hs := range r.handlers {
		n += len(hs)
	}
	return n
}
