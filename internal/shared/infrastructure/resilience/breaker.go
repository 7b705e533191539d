// Package resilience wraps remote calls in named circuit breakers.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	sharedDomain "github.com/felixgeelhaar/fundsaga/internal/shared/domain"
	"github.com/felixgeelhaar/fundsaga/pkg/observability"
	"github.com/sony/gobreaker/v2"
)

// Breaker names used by the saga.
const (
	BreakerCoreBanking             = "core-banking"
	BreakerCoreBankingCompensation = "core-banking-compensation"
	BreakerMarketing               = "marketing"
	BreakerMarketingCompensation   = "marketing-compensation"
)

// ErrCircuitOpen is returned when a breaker rejects a call without trying it.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Config configures every breaker in a Registry.
type Config struct {
	// MaxRequests is the maximum number of requests allowed in half-open state.
	MaxRequests uint32
	// Interval is the cyclic period of the closed state.
	Interval time.Duration
	// Timeout is the period of the open state.
	Timeout time.Duration
	// FailureThreshold trips the breaker after this many consecutive failures.
	FailureThreshold uint32
	// CallTimeout bounds each call. Zero leaves the caller's deadline alone.
	CallTimeout time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		CallTimeout:      5 * time.Second,
	}
}

// Registry owns one breaker per remote dependency.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
	config   Config
	logger   *slog.Logger
	metrics  observability.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(config Config, logger *slog.Logger, metrics observability.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Registry{
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

// Breaker returns the named breaker, creating it on first use.
func (r *Registry) Breaker(name string) *gobreaker.CircuitBreaker[any] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: r.config.MaxRequests,
		Interval:    r.config.Interval,
		Timeout:     r.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= r.config.FailureThreshold
		},
		// Business rejections are answers, not outages.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			appErr, ok := sharedDomain.AsAppError(err)
			return ok && (appErr.Kind == sharedDomain.KindBusiness || appErr.Kind == sharedDomain.KindValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			r.metrics.Counter(observability.MetricBreakerTransitions, 1,
				observability.T("breaker", name),
				observability.T("to", to.String()),
			)
		},
	}

	b := gobreaker.NewCircuitBreaker[any](settings)
	r.breakers[name] = b
	return b
}

// States reports the state of every breaker created so far, by name.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}

// OpenBreakers lists the names of breakers currently open.
func (r *Registry) OpenBreakers() []string {
	var open []string
	for name, state := range r.States() {
		if state == gobreaker.StateOpen.String() {
			open = append(open, name)
		}
	}
	sort.Strings(open)
	return open
}

// Execute runs fn through the named breaker with the configured call timeout.
// Open and half-open rejections surface as ErrCircuitOpen.
func Execute[T any](ctx context.Context, r *Registry, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if r.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.CallTimeout)
		defer cancel()
	}

	result, err := r.Breaker(name).Execute(func() (any, error) {
		return fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, ErrCircuitOpen
	}
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, nil
	}
	return typed, nil
}
