package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are shared by every cache policy.
type Metrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	bytes     prometheus.Gauge
	elements  prometheus.Gauge
}

// NewMetrics returns cache metrics carrying labels as const labels.
func NewMetrics(labels prometheus.Labels) *Metrics {
	const namespace = "raft"
	const subsystem = "in_flight_cache"

	return &Metrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "hits_total",
			Help:        "Number of lookups served from the cache",
			ConstLabels: labels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "misses_total",
			Help:        "Number of lookups not served from the cache",
			ConstLabels: labels,
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "evictions_total",
			Help:        "Number of entries evicted to stay within limits",
			ConstLabels: labels,
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "bytes",
			Help:        "Total size of cached entries",
			ConstLabels: labels,
		}),
		elements: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "elements",
			Help:        "Number of cached entries",
			ConstLabels: labels,
		}),
	}
}

func (m *Metrics) lookup(hit bool) {
	if hit {
		m.hits.Inc()
	} else {
		m.misses.Inc()
	}
}

func (m *Metrics) set(bytes int64, elements int) {
	m.bytes.Set(float64(bytes))
	m.elements.Set(float64(elements))
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.hits, m.misses, m.evictions, m.bytes, m.elements}
}
