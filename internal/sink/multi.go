package sink

import (
	"time"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
	"github.com/HaPhanBaoMinh/kwatch/internal/metrics"
)

// Multi fans every event out to all sinks and counts it.
type Multi struct {
	sinks   []domain.EventSink
	metrics *metrics.Metrics
}

func NewMulti(m *metrics.Metrics, sinks ...domain.EventSink) *Multi {
	return &Multi{sinks: sinks, metrics: m}
}

func (m *Multi) Publish(ev domain.Event, ts time.Time, attrs map[string]string) {
	for _, s := range m.sinks {
		s.Publish(ev, ts, attrs)
	}
	if m.metrics != nil {
		m.metrics.EventsPublished.WithLabelValues(string(ev.EventKind())).Inc()
	}
}
