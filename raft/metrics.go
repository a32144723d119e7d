package raft

import (
	"github.com/prometheus/client_golang/prometheus"
)

// machineMetrics holds metrics related to the consensus machine.
type machineMetrics struct {
	term             prometheus.Gauge
	role             *prometheus.GaugeVec
	commitIndex      prometheus.Gauge
	appendIndex      prometheus.Gauge
	electionsStarted prometheus.Counter
	leaderChanges    prometheus.Counter
	messages         *prometheus.CounterVec
	failures         prometheus.Counter
	staleTimeouts    prometheus.Counter
}

func newMachineMetrics(labels prometheus.Labels) *machineMetrics {
	const namespace = "raft"
	const subsystem = "machine"

	return &machineMetrics{
		term: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "term",
			Help:        "Current term of the member",
			ConstLabels: labels,
		}),
		role: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "role",
			Help:        "Set to 1 for the role the member currently has",
			ConstLabels: labels,
		}, []string{"role"}),
		commitIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "commit_index",
			Help:        "Highest log index known to be committed",
			ConstLabels: labels,
		}),
		appendIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "append_index",
			Help:        "Highest log index appended locally",
			ConstLabels: labels,
		}),
		electionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "elections_started_total",
			Help:        "Number of real elections started by the member",
			ConstLabels: labels,
		}),
		leaderChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "leader_changes_total",
			Help:        "Number of times the known leader changed",
			ConstLabels: labels,
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "messages_handled_total",
			Help:        "Number of messages handled, by type",
			ConstLabels: labels,
		}, []string{"type"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "failures_total",
			Help:        "Number of messages whose outcome broke an invariant or could not be applied",
			ConstLabels: labels,
		}),
		staleTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "stale_timeouts_total",
			Help:        "Number of election timeouts dropped because the timer was renewed after they fired",
			ConstLabels: labels,
		}),
	}
}

func (m *machineMetrics) setRole(r Role) {
	for _, role := range []Role{Follower, PreCandidate, Candidate, Leader} {
		v := 0.0
		if role == r {
			v = 1
		}
		m.role.WithLabelValues(role.String()).Set(v)
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *machineMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.term,
		m.role,
		m.commitIndex,
		m.appendIndex,
		m.electionsStarted,
		m.leaderChanges,
		m.messages,
		m.failures,
		m.staleTimeouts,
	}
}
