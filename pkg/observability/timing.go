package observability

import "time"

// Timer measures one operation and reports it as a timing metric on Stop.
type Timer struct {
	metrics Metrics
	name    string
	tags    []Tag
	start   time.Time
	now     func() time.Time
}

// StartTimer begins measuring name. A nil metrics sink only measures.
func StartTimer(metrics Metrics, name string, tags ...Tag) *Timer {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Timer{metrics: metrics, name: name, tags: tags, start: time.Now(), now: time.Now}
}

// Elapsed returns the time since the timer started.
func (t *Timer) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// Stop records the elapsed time with the start tags plus extra, and returns it.
func (t *Timer) Stop(extra ...Tag) time.Duration {
	d := t.Elapsed()
	tags := make([]Tag, 0, len(t.tags)+len(extra))
	tags = append(tags, t.tags...)
	tags = append(tags, extra...)
	t.metrics.Timing(t.name, d, tags...)
	return d
}
