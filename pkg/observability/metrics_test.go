package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	var m Metrics = NoopMetrics{}
	assert.NotPanics(t, func() {
		m.Counter(MetricSubscriptions, 1, T("status", "SUCCESS"))
		m.Gauge(MetricOutboxLag, 1.5)
		m.Histogram("payload_bytes", 512)
		m.Timing(MetricSubscriptionDuration, time.Second)
	})
}

func TestInMemoryMetrics_CountersBySeries(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Counter(MetricSubscriptions, 1, T("status", "SUCCESS"), T("accounting", "REAL_TIME"))
	m.Counter(MetricSubscriptions, 1, T("accounting", "REAL_TIME"), T("status", "SUCCESS"))
	m.Counter(MetricSubscriptions, 1, T("status", "FAILED"), T("accounting", "REAL_TIME"))

	assert.Equal(t, int64(2), m.GetCounter(MetricSubscriptions, T("status", "SUCCESS"), T("accounting", "REAL_TIME")))
	assert.Equal(t, int64(1), m.GetCounter(MetricSubscriptions, T("accounting", "REAL_TIME"), T("status", "FAILED")))
	assert.Zero(t, m.GetCounter(MetricSubscriptions))
}

func TestInMemoryMetrics_GaugeKeepsLastValue(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Gauge(MetricOutboxLag, 12)
	m.Gauge(MetricOutboxLag, 3.5)

	assert.Equal(t, 3.5, m.GetGauge(MetricOutboxLag))
}

func TestInMemoryMetrics_SamplesAreCopied(t *testing.T) {
	m := NewInMemoryMetrics()

	m.Histogram("payload_bytes", 100)
	m.Histogram("payload_bytes", 200)
	m.Timing(MetricRecoveryDuration, 40*time.Millisecond)

	samples := m.GetHistogram("payload_bytes")
	assert.Equal(t, []float64{100, 200}, samples)
	samples[0] = -1
	assert.Equal(t, 100.0, m.GetHistogram("payload_bytes")[0])

	assert.Equal(t, []time.Duration{40 * time.Millisecond}, m.GetTimings(MetricRecoveryDuration))
}

func TestInMemoryMetrics_Reset(t *testing.T) {
	m := NewInMemoryMetrics()
	m.Counter(MetricEventsPublished, 4)
	m.Timing(MetricHTTPDuration, time.Second)

	m.Reset()

	assert.Zero(t, m.GetCounter(MetricEventsPublished))
	assert.Empty(t, m.GetTimings(MetricHTTPDuration))
}

func TestSeriesKey(t *testing.T) {
	tests := []struct {
		name string
		tags []Tag
		want string
	}{
		{name: "no labels", want: "fundsaga.events.dead"},
		{name: "one label", tags: []Tag{T("routing_key", "x")}, want: "fundsaga.events.dead{routing_key=x}"},
		{name: "sorted labels", tags: []Tag{T("b", "2"), T("a", "1")}, want: "fundsaga.events.dead{a=1,b=2}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, seriesKey(MetricEventsDead, tt.tags))
		})
	}
}

func TestTimer_RecordsWithStartAndStopTags(t *testing.T) {
	m := NewInMemoryMetrics()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	timer := StartTimer(m, MetricRecoveryDuration, T("worker", "recovery"))
	timer.start = base
	timer.now = func() time.Time { return base.Add(250 * time.Millisecond) }

	assert.Equal(t, 250*time.Millisecond, timer.Stop(T("result", "ok")))
	assert.Equal(t,
		[]time.Duration{250 * time.Millisecond},
		m.GetTimings(MetricRecoveryDuration, T("result", "ok"), T("worker", "recovery")),
	)
}

func TestTimer_NilSinkStillMeasures(t *testing.T) {
	timer := StartTimer(nil, MetricHTTPDuration)
	assert.GreaterOrEqual(t, timer.Stop(), time.Duration(0))
}
