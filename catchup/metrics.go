package catchup

import (
	"github.com/prometheus/client_golang/prometheus"
)

type downloaderMetrics struct {
	attempts  prometheus.Counter
	succeeded prometheus.Counter
	failed    prometheus.Counter
}

func newDownloaderMetrics(labels prometheus.Labels) *downloaderMetrics {
	const namespace = "raft"
	const subsystem = "catchup"

	return &downloaderMetrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "attempts_total",
			Help:        "Number of snapshot download attempts",
			ConstLabels: labels,
		}),
		succeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "succeeded_total",
			Help:        "Number of snapshots downloaded and installed",
			ConstLabels: labels,
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "failed_total",
			Help:        "Number of failed snapshot download attempts",
			ConstLabels: labels,
		}),
	}
}

func (m *downloaderMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.attempts, m.succeeded, m.failed}
}
