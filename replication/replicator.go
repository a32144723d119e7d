package replication

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/logger"
	"github.com/influxdata/coreraft/raft"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Replicator submits content to the current leader and waits for it to be
// applied. The same operation is resubmitted whenever the leader changes
// or the retry interval passes, which is safe because the session tracker
// applies it at most once.
type Replicator struct {
	myself   coreraft.MemberID
	outbound raft.Outbound
	pool     *LocalSessionPool
	progress *ProgressTracker
	clock    clock.Clock
	retry    time.Duration
	log      *zap.Logger
	metrics  *replicatorMetrics

	mu            sync.Mutex
	leader        raft.LeaderInfo
	leaderChanged chan struct{}
}

// NewReplicator returns a replicator for myself. It must be registered as
// a leader listener of the member's machine.
func NewReplicator(
	log *zap.Logger,
	myself coreraft.MemberID,
	outbound raft.Outbound,
	pool *LocalSessionPool,
	progress *ProgressTracker,
	clk clock.Clock,
	c Config,
) *Replicator {
	return &Replicator{
		myself:        myself,
		outbound:      outbound,
		pool:          pool,
		progress:      progress,
		clock:         clk,
		retry:         time.Duration(c.RetryInterval),
		log:           log.With(logger.Member(myself)),
		metrics:       newReplicatorMetrics(prometheus.Labels{"member": myself.String()}),
		leaderChanged: make(chan struct{}),
	}
}

// OnLeaderSwitch wakes up every pending replication.
func (r *Replicator) OnLeaderSwitch(info raft.LeaderInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leader = info
	close(r.leaderChanged)
	r.leaderChanged = make(chan struct{})
}

func (r *Replicator) currentLeader() (coreraft.MemberID, <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leader.Leader, r.leaderChanged
}

// Replicate submits content and returns the result of applying it.
func (r *Replicator) Replicate(ctx context.Context, content coreraft.ReplicatedContent) (interface{}, error) {
	const op = "replication.Replicate"

	session := r.pool.Acquire()
	dop := &DistributedOperation{
		Content:       content,
		GlobalSession: r.pool.GlobalSession(),
		OperationID:   session.NextOperationID(),
	}
	p := r.progress.Start(dop)

	if err := r.awaitReplication(ctx, dop, p); err != nil {
		r.progress.Abort(dop)
		// The operation may still commit later, so the session cannot be
		// reused without breaking its sequence.
		r.pool.Discard(session)
		r.metrics.failed.Inc()
		return nil, &errors.Error{Code: errors.ECancelled, Op: op, Err: err}
	}
	r.pool.Release(session)

	select {
	case <-p.Done():
		r.metrics.succeeded.Inc()
		return p.Result()
	case <-ctx.Done():
		r.progress.Abort(dop)
		r.metrics.failed.Inc()
		return nil, &errors.Error{Code: errors.ECancelled, Op: op, Msg: "replicated but not applied", Err: ctx.Err()}
	}
}

func (r *Replicator) awaitReplication(ctx context.Context, dop *DistributedOperation, p *Progress) error {
	for attempt := 1; ; attempt++ {
		leader, changed := r.currentLeader()
		if !leader.IsZero() {
			r.metrics.attempts.Inc()
			if attempt > 1 {
				r.log.Debug("Resubmitting operation",
					zap.Stringer("operation", dop.OperationID),
					zap.Stringer("leader", leader),
					zap.Int("attempt", attempt))
			}
			r.outbound.Send(leader, &raft.NewEntryRequest{Base: raft.Base{From: r.myself}, Content: dop})
		}

		t := r.clock.Timer(r.retry)
		select {
		case <-p.Replicated():
			t.Stop()
			return nil
		case <-changed:
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
		t.Stop()
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (r *Replicator) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{r.metrics.attempts, r.metrics.succeeded, r.metrics.failed}
}

type replicatorMetrics struct {
	attempts  prometheus.Counter
	succeeded prometheus.Counter
	failed    prometheus.Counter
}

func newReplicatorMetrics(labels prometheus.Labels) *replicatorMetrics {
	const namespace = "raft"
	const subsystem = "replication"

	return &replicatorMetrics{
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "attempts_total",
			Help:        "Number of times an operation was sent to a leader",
			ConstLabels: labels,
		}),
		succeeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "succeeded_total",
			Help:        "Number of operations applied after replication",
			ConstLabels: labels,
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        "failed_total",
			Help:        "Number of operations abandoned before they were applied",
			ConstLabels: labels,
		}),
	}
}
