// Package metrics holds the agent's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kwatch"

type Metrics struct {
	ActiveWatches   *prometheus.GaugeVec
	WatchesCreated  *prometheus.CounterVec
	WatchesClosed   *prometheus.CounterVec
	EventsPublished *prometheus.CounterVec
	EventsSkipped   *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	OwnerCacheHits  prometheus.Counter
	OwnerCacheMiss  prometheus.Counter
	PollRuns        *prometheus.CounterVec
	PollDuration    prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveWatches: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_watches",
			Help:      "Number of live watches by resource kind",
		}, []string{"kind"}),
		WatchesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watches_created_total",
			Help:      "Watches subscribed, by resource kind",
		}, []string{"kind"}),
		WatchesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watches_closed_total",
			Help:      "Watches released, by resource kind and reason (deleted, closed)",
		}, []string{"kind", "reason"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events handed to the sink, by event kind",
		}, []string{"kind"}),
		EventsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Watch deliveries not translated, by watcher and reason",
		}, []string{"watcher", "reason"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events a sink discarded because it could not accept them, by sink",
		}, []string{"sink"}),
		OwnerCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "owner_cache_hits_total",
			Help:      "Owner lookups served from cache",
		}),
		OwnerCacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "owner_cache_misses_total",
			Help:      "Owner lookups that missed the cache",
		}),
		PollRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_runs_total",
			Help:      "Metrics polling runs by result (success, failure)",
		}, []string{"result"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a metrics polling run",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.ActiveWatches, m.WatchesCreated, m.WatchesClosed,
		m.EventsPublished, m.EventsSkipped, m.EventsDropped,
		m.OwnerCacheHits, m.OwnerCacheMiss,
		m.PollRuns, m.PollDuration,
	)
	return m
}

// NewUnregistered is for tests and tools that do not expose /metrics.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
