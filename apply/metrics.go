package apply

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "raft"

type processMetrics struct {
	applied     prometheus.Counter
	duplicates  prometheus.Counter
	lastApplied prometheus.Gauge
}

func newProcessMetrics(labels prometheus.Labels) *processMetrics {
	const subsystem = "apply"

	return &processMetrics{
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "entries_total",
			Help:        "Number of committed entries applied",
			ConstLabels: labels,
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "duplicates_total",
			Help:        "Number of committed operations dropped as resubmissions",
			ConstLabels: labels,
		}),
		lastApplied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "last_applied_index",
			Help:        "Index of the last applied entry",
			ConstLabels: labels,
		}),
	}
}

func (m *processMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.applied, m.duplicates, m.lastApplied}
}

type applierMetrics struct {
	foreign   prometheus.Counter
	dropped   prometheus.Counter
	downloads prometheus.Counter
	panics    prometheus.Counter
}

func newApplierMetrics(labels prometheus.Labels) *applierMetrics {
	const subsystem = "applier"

	return &applierMetrics{
		foreign: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "foreign_cluster_total",
			Help:        "Number of messages rejected for carrying another cluster id",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "dropped_timeouts_total",
			Help:        "Number of local timeouts dropped on a full queue",
			ConstLabels: labels,
		}),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "snapshot_downloads_total",
			Help:        "Number of snapshot downloads scheduled",
			ConstLabels: labels,
		}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "panics_total",
			Help:        "Number of times the member panicked",
			ConstLabels: labels,
		}),
	}
}

func (m *applierMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.foreign, m.dropped, m.downloads, m.panics}
}
