// Package metrics exposes prometheus instruments for the sync pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventsync/internal/ledger"
)

const namespace = "eventsync"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	Registry *prometheus.Registry

	polls          *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	syncs          *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	cachedEvents   prometheus.Gauge
	cacheFallbacks prometheus.Counter
	streamDrops    prometheus.Counter
}

var _ ledger.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_polls_total",
			Help:      "Transaction status polls by observed status.",
		}, []string{"status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_transitions_total",
			Help:      "Transaction waiter state transitions by target state.",
		}, []string{"to"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Completed sync runs by result.",
		}, []string{"source", "result"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of sync runs including consensus wait.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		cachedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_events",
			Help:      "Events in the last saved snapshot.",
		}),
		cacheFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_fallbacks_total",
			Help:      "Loads served from the local cache after a source failure.",
		}),
		streamDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_dropped_total",
			Help:      "Snapshots not delivered to a stream subscriber whose buffer was full.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.polls,
		m.transitions,
		m.syncs,
		m.syncDuration,
		m.cachedEvents,
		m.cacheFallbacks,
		m.streamDrops,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Polled(hash ledger.TxHash, status ledger.Status, err error) {
	if m == nil {
		return
	}
	label := string(status)
	if err != nil {
		label = "error"
	} else if label == "" {
		label = "unknown"
	}
	m.polls.WithLabelValues(label).Inc()
}

func (m *Metrics) Transitioned(t ledger.Transition) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(t.To)).Inc()
}

func (m *Metrics) SyncFinished(source string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.syncs.WithLabelValues(source, result).Inc()
	m.syncDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) SetCachedEvents(n int) {
	if m == nil {
		return
	}
	m.cachedEvents.Set(float64(n))
}

func (m *Metrics) CacheFallback() {
	if m == nil {
		return
	}
	m.cacheFallbacks.Inc()
}

func (m *Metrics) StreamDropped() {
	if m == nil {
		return
	}
	m.streamDrops.Inc()
}
