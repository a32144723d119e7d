package launcher

import (
	"context"
	"fmt"
	"time"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/cluster"
	"github.com/influxdata/coreraft/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// workload replicates a counter through the members in turn.
type workload struct {
	log      *zap.Logger
	cluster  *cluster.Cluster
	interval time.Duration

	writes *prometheus.CounterVec
}

func newWorkload(log *zap.Logger, cl *cluster.Cluster, interval time.Duration) *workload {
	return &workload{
		log:      log.With(zap.String("service", "workload")),
		cluster:  cl,
		interval: interval,
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raftd",
			Subsystem: "workload",
			Name:      "writes_total",
			Help:      "Number of values the workload tried to replicate.",
		}, []string{"status"}),
	}
}

func (w *workload) run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	members := w.cluster.Members()
	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		m := members[n%len(members)]
		wctx, cancel := context.WithTimeout(ctx, 10*w.interval)
		res, err := m.Replicate(wctx, coreraft.ByteContent(fmt.Sprintf("value-%d", n)))
		cancel()
		if err != nil {
			w.writes.WithLabelValues("failed").Inc()
			if ctx.Err() == nil {
				w.log.Info("Write failed", logger.Member(m.ID), zap.Error(err))
			}
			continue
		}
		w.writes.WithLabelValues("ok").Inc()
		if index, ok := res.(int64); ok {
			w.log.Debug("Write applied", logger.Member(m.ID), logger.Index(index))
		}
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (w *workload) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{w.writes}
}
