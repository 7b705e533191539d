package observability

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Metrics is the sink the saga, the workers and the HTTP layer report to.
// PrometheusMetrics backs it in production; InMemoryMetrics backs tests.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Histogram(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is a metric label.
type Tag struct {
	Key   string
	Value string
}

// T is shorthand for a Tag literal.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// series holds every kind of observation for one name and label set.
type series struct {
	count   int64
	gauge   float64
	samples []float64
	timings []time.Duration
}

// InMemoryMetrics records observations so tests can assert on them.
// Label order does not matter when reading back.
type InMemoryMetrics struct {
	mu     sync.RWMutex
	series map[string]*series
}

// NewInMemoryMetrics creates an empty recorder.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{series: make(map[string]*series)}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.update(name, tags, func(s *series) { s.count += value })
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.update(name, tags, func(s *series) { s.gauge = value })
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.update(name, tags, func(s *series) { s.samples = append(s.samples, value) })
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.update(name, tags, func(s *series) { s.timings = append(s.timings, duration) })
}

// GetCounter returns the accumulated counter value.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	return m.read(name, tags).count
}

// GetGauge returns the last gauge value.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	return m.read(name, tags).gauge
}

// GetHistogram returns a copy of the recorded samples.
func (m *InMemoryMetrics) GetHistogram(name string, tags ...Tag) []float64 {
	return slices.Clone(m.read(name, tags).samples)
}

// GetTimings returns a copy of the recorded durations.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	return slices.Clone(m.read(name, tags).timings)
}

// Reset drops all series.
func (m *InMemoryMetrics) Reset() {
	m.mu.Lock()
	m.series = make(map[string]*series)
	m.mu.Unlock()
}

func (m *InMemoryMetrics) update(name string, tags []Tag, apply func(*series)) {
	key := seriesKey(name, tags)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[key]
	if !ok {
		s = &series{}
		m.series[key] = s
	}
	apply(s)
}

func (m *InMemoryMetrics) read(name string, tags []Tag) series {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.series[seriesKey(name, tags)]; ok {
		return *s
	}
	return series{}
}

// seriesKey renders name{k=v,...} with labels sorted by key.
func seriesKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := slices.Clone(tags)
	slices.SortFunc(sorted, func(a, b Tag) int { return strings.Compare(a.Key, b.Key) })

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, t := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	b.WriteByte('}')
	return b.String()
}

// Metric names used throughout fundsaga.
const (
	// HTTP API metrics
	MetricHTTPRequests = "fundsaga.http.requests"
	MetricHTTPDuration = "fundsaga.http.duration"

	// Subscription saga metrics
	MetricSubscriptions        = "fundsaga.subscriptions.total"
	MetricSubscriptionDuration = "fundsaga.subscriptions.duration"
	MetricQuotaRejections      = "fundsaga.subscriptions.quota_rejections"

	// Compensation metrics
	MetricCompensations           = "fundsaga.compensations.total"
	MetricCompensationEscalations = "fundsaga.compensations.escalations"

	// Recovery metrics
	MetricRecoveryCycles   = "fundsaga.recovery.cycles"
	MetricRecoveryStuck    = "fundsaga.recovery.stuck"
	MetricRecoveryDuration = "fundsaga.recovery.duration"

	// Circuit breaker metrics
	MetricBreakerTransitions = "fundsaga.breaker.transitions"

	// Outbox metrics
	MetricEventsPublished = "fundsaga.events.published"
	MetricEventsFailed    = "fundsaga.events.failed"
	MetricEventsDead      = "fundsaga.events.dead"
	MetricOutboxLag       = "fundsaga.outbox.lag_seconds"
)
