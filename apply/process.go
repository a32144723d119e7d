package apply

import (
	"context"
	"sync"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/catchup"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/logger"
	"github.com/influxdata/coreraft/raft"
	"github.com/influxdata/coreraft/raftlog/cache"
	"github.com/influxdata/coreraft/replication"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// CommittedSink is the storage engine consuming committed entries. Apply
// is called once per entry, in log order and without gaps.
type CommittedSink interface {
	// Apply applies content committed at index and returns the result
	// reported to the member that submitted it.
	Apply(index int64, content coreraft.ReplicatedContent) (interface{}, error)

	// Snapshot returns the state of the engine.
	Snapshot() ([]byte, error)

	// Install replaces the state of the engine with a snapshot.
	Install(data []byte) error
}

// Machine is the part of the raft machine the command process reads from.
type Machine interface {
	ReadEntry(index int64) (*coreraft.LogEntry, error)
	CoreState(index int64) (raft.SnapshotState, error)
	InstallSnapshot(snap raft.SnapshotState) error
}

// CommandProcess applies committed entries to the sink. Operations are
// deduplicated by their session so that an operation resubmitted after a
// leader change is applied once.
type CommandProcess struct {
	log      *zap.Logger
	machine  Machine
	cache    cache.InFlightCache
	sink     CommittedSink
	sessions *replication.SessionTracker
	progress *replication.ProgressTracker
	config   Config
	metrics  *processMetrics

	mu          sync.Mutex
	lastApplied int64
	lastPrune   int64
}

var _ catchup.Installer = (*CommandProcess)(nil)

// NewCommandProcess returns a process that has applied nothing.
func NewCommandProcess(
	log *zap.Logger,
	myself coreraft.MemberID,
	machine Machine,
	inFlight cache.InFlightCache,
	sink CommittedSink,
	sessions *replication.SessionTracker,
	progress *replication.ProgressTracker,
	c Config,
) *CommandProcess {
	p := &CommandProcess{
		log:         log.With(logger.Member(myself)),
		machine:     machine,
		cache:       inFlight,
		sink:        sink,
		sessions:    sessions,
		progress:    progress,
		config:      c,
		metrics:     newProcessMetrics(prometheus.Labels{"member": myself.String()}),
		lastApplied: -1,
		lastPrune:   -1,
	}
	p.metrics.lastApplied.Set(-1)
	return p
}

// LastApplied returns the index of the last applied entry.
func (p *CommandProcess) LastApplied() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastApplied
}

// NotifyCommitted applies every entry up to commitIndex not yet applied.
func (p *CommandProcess) NotifyCommitted(commitIndex int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for index := p.lastApplied + 1; index <= commitIndex; index++ {
		e, release, err := p.readEntry(index)
		if err != nil {
			return &errors.Error{
				Code: errors.EInternal,
				Op:   "apply.NotifyCommitted",
				Msg:  "failed to read committed entry",
				Err:  err,
			}
		}
		p.applyEntry(index, e)
		release()
	}
	return nil
}

func (p *CommandProcess) readEntry(index int64) (*coreraft.LogEntry, func(), error) {
	if e, release, ok := p.cache.Acquire(index); ok {
		return e, release, nil
	}
	e, err := p.machine.ReadEntry(index)
	return e, func() {}, err
}

// applyEntry hands the content of e to the sink. Entries the consensus
// layer appends for itself are only counted.
func (p *CommandProcess) applyEntry(index int64, e *coreraft.LogEntry) {
	switch c := e.Content.(type) {
	case *replication.DistributedOperation:
		p.progress.TrackReplication(c)
		if !p.sessions.Validate(c.GlobalSession, c.OperationID) {
			p.metrics.duplicates.Inc()
			p.log.Debug("Dropping resubmitted operation",
				logger.Index(index),
				zap.Stringer("session", c.GlobalSession),
				zap.Stringer("operation", c.OperationID))
			break
		}
		p.sessions.Update(c.GlobalSession, c.OperationID, index)
		result, err := p.sink.Apply(index, c.Content)
		p.progress.TrackResult(c, result, err)
	case coreraft.NewLeaderBarrier, *coreraft.MemberSetContent:
	default:
		if _, err := p.sink.Apply(index, c); err != nil {
			p.log.Warn("Failed to apply entry", logger.Index(index), zap.Error(err))
		}
	}

	p.lastApplied = index
	p.metrics.applied.Inc()
	p.metrics.lastApplied.Set(float64(index))
}

// PruneRequest returns a request to prune the log behind the retained
// entries, when enough were applied since the last one.
func (p *CommandProcess) PruneRequest() (*raft.PruneRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	index := p.lastApplied - p.config.RetainEntries
	if index < 0 || index <= p.lastPrune {
		return nil, false
	}
	p.lastPrune = index
	return &raft.PruneRequest{PruneIndex: index}, true
}

// Snapshot returns the state of the member at the last applied entry.
func (p *CommandProcess) Snapshot() (*catchup.CoreSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	const op = "apply.Snapshot"
	if p.lastApplied < 0 {
		return nil, &errors.Error{Code: errors.EUnavailable, Op: op, Msg: "nothing applied yet"}
	}
	rs, err := p.machine.CoreState(p.lastApplied)
	if err != nil {
		return nil, &errors.Error{Code: errors.EInternal, Op: op, Err: err}
	}
	data, err := p.sink.Snapshot()
	if err != nil {
		return nil, &errors.Error{Code: errors.EInternal, Op: op, Msg: "failed to snapshot storage engine", Err: err}
	}
	return &catchup.CoreSnapshot{Raft: rs, Sessions: p.sessions.Snapshot(), Data: data}, nil
}

// CommittedEntries returns the applied entries from fromIndex on.
func (p *CommandProcess) CommittedEntries(fromIndex int64) ([]*coreraft.LogEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var entries []*coreraft.LogEntry
	for index := fromIndex; index <= p.lastApplied; index++ {
		e, err := p.machine.ReadEntry(index)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Install replaces the applied state with snap, applies the tail after it
// and makes the log start after the last entry of the tail. When any step
// fails the applied state is restored, so the same snapshot can be retried.
func (p *CommandProcess) Install(ctx context.Context, snap *catchup.CoreSnapshot, tail []*coreraft.LogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	const op = "apply.Install"
	last := snap.Raft.PrevIndex + int64(len(tail))
	if last <= p.lastApplied {
		return &errors.Error{
			Code: errors.EConflict,
			Op:   op,
			Msg:  "snapshot is behind the applied state",
			Err:  errors.Errorf(errors.EConflict, "snapshot ends at %d, applied %d", last, p.lastApplied),
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	prevData, err := p.sink.Snapshot()
	if err != nil {
		return &errors.Error{Code: errors.EInternal, Op: op, Msg: "failed to snapshot storage engine", Err: err}
	}
	prevSessions, prevApplied := p.sessions.Snapshot(), p.lastApplied

	if err := p.install(snap, tail); err != nil {
		if rerr := p.sink.Install(prevData); rerr != nil {
			logger.FromContext(ctx, p.log).Error("Failed to restore storage engine after failed install", zap.Error(rerr))
		}
		p.sessions.Install(prevSessions)
		p.lastApplied = prevApplied
		p.metrics.lastApplied.Set(float64(prevApplied))
		return &errors.Error{Op: op, Err: err}
	}
	return nil
}

func (p *CommandProcess) install(snap *catchup.CoreSnapshot, tail []*coreraft.LogEntry) error {
	if err := p.sink.Install(snap.Data); err != nil {
		return &errors.Error{Code: errors.EInternal, Msg: "failed to install storage engine snapshot", Err: err}
	}
	p.sessions.Install(snap.Sessions)
	p.lastApplied = snap.Raft.PrevIndex

	term := snap.Raft.PrevTerm
	for _, e := range tail {
		p.applyEntry(p.lastApplied+1, e)
		term = e.Term
	}
	p.metrics.lastApplied.Set(float64(p.lastApplied))

	if err := p.machine.InstallSnapshot(raft.SnapshotState{
		PrevIndex: p.lastApplied,
		PrevTerm:  term,
		Members:   snap.Raft.Members,
	}); err != nil {
		return &errors.Error{Code: errors.EInternal, Msg: "failed to install raft snapshot", Err: err}
	}
	return nil
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (p *CommandProcess) PrometheusCollectors() []prometheus.Collector {
	return p.metrics.PrometheusCollectors()
}
