package cluster

import (
	"context"
	"path/filepath"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/apply"
	"github.com/influxdata/coreraft/bolt"
	"github.com/influxdata/coreraft/catchup"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/logger"
	"github.com/influxdata/coreraft/pkg/lifecycle"
	"github.com/influxdata/coreraft/raft"
	"github.com/influxdata/coreraft/raft/schedule"
	"github.com/influxdata/coreraft/raftlog/cache"
	"github.com/influxdata/coreraft/raftlog/inmem"
	"github.com/influxdata/coreraft/replication"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Member is one assembled member of a cluster: its consensus machine and
// everything that feeds messages to it and applies what it commits.
type Member struct {
	ID coreraft.MemberID

	Machine    *raft.Machine
	Applier    *apply.MessageApplier
	Commands   *apply.CommandProcess
	Replicator *replication.Replicator
	Downloader *catchup.Downloader
	Downloads  *catchup.DownloadService
	Strategy   *catchup.RandomWithinGroupStrategy
	Timers     *schedule.TimerService
	Store      *Store
	Log        coreraft.RaftLog

	cluster      *Cluster
	log          *zap.Logger
	cacheMetrics *cache.Metrics
	db           *bolt.Client
	unregister   func()
}

func newMember(c *Cluster, id coreraft.MemberID) *Member {
	return &Member{
		ID:      id,
		cluster: c,
		log:     c.log.With(logger.Member(id)),
	}
}

// Open restores the member's storage and assembles its components. The
// member stays passive until its cluster starts it.
func (m *Member) Open(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			_ = m.Close()
		}
	}()

	c := m.cluster
	labels := prometheus.Labels{"member": m.ID.String()}

	storage, err := m.openStorage(ctx)
	if err != nil {
		return err
	}

	m.cacheMetrics = cache.NewMetrics(labels)
	inFlight, err := cache.New(c.config.Cache, m.cacheMetrics)
	if err != nil {
		return &errors.Error{Code: errors.EInvalid, Op: "cluster.Member.Open", Err: err}
	}

	outbound := raft.NewLoggingOutbound(c.Network.Outbound(m.ID), m.log)
	m.Timers = schedule.NewTimerService(c.clock, c.timers, m.log)
	m.Machine, err = raft.NewMachine(m.log, m.ID, c.memberSet(), c.config.Raft, m.Log, inFlight, storage, outbound, m.Timers)
	if err != nil {
		return err
	}

	pool := replication.NewLocalSessionPool(m.ID)
	progress := replication.NewProgressTracker()
	m.Replicator = replication.NewReplicator(m.log, m.ID, outbound, pool, progress, c.clock, c.config.Replication)
	m.unregister = m.Machine.RegisterListener(m.Replicator)

	m.Store = NewStore()
	m.Commands = apply.NewCommandProcess(m.log, m.ID, m.Machine, inFlight, m.Store, replication.NewSessionTracker(), progress, c.config.Apply)

	m.Strategy = catchup.NewRandomWithinGroupStrategy(m.ID, c.groups, c.seed)
	addresses := catchup.NewPrioritisingAddressProvider(m.Machine, m.Strategy)
	m.Downloader = catchup.NewDownloader(m.log, m.ID, &upstream{cluster: c, myself: m.ID}, addresses, m.Commands, c.clock, c.config.Catchup)
	m.Downloads = catchup.NewDownloadService(m.log, m.Downloader, c.scheduler)

	m.Applier = apply.NewMessageApplier(m.log, m.ID, c.ID, m.Machine, m.Commands, m.Downloads, c.config.Apply)
	return nil
}

func (m *Member) openStorage(ctx context.Context) (raft.StateStorage, error) {
	dir := m.cluster.config.Dir
	if dir == "" {
		m.Log = inmem.NewLog()
		return &raft.MemoryStateStorage{}, nil
	}

	m.db = bolt.NewClient(m.log)
	m.db.Path = filepath.Join(dir, m.ID.FullString(), "raft.db")
	if err := m.db.Open(ctx); err != nil {
		return nil, err
	}
	store, err := bolt.NewLogStore(m.db)
	if err != nil {
		_ = m.db.Close()
		return nil, err
	}
	m.Log = store
	return bolt.NewStateStore(m.db), nil
}

// start arms the election timer. Timer messages are handed to deliver.
func (m *Member) start(deliver func(raft.Message)) {
	m.Machine.PostRecoveryActions(deliver)
}

// Handle queues msg for the member's applier.
func (m *Member) Handle(ctx context.Context, msg raft.ClusterIDAwareMessage) error {
	return m.Applier.Handle(ctx, msg)
}

// Process handles msg before returning.
func (m *Member) Process(ctx context.Context, msg raft.ClusterIDAwareMessage) error {
	return m.Applier.Process(ctx, msg)
}

// Replicate submits content through the current leader and returns the
// result of applying it on this member.
func (m *Member) Replicate(ctx context.Context, content coreraft.ReplicatedContent) (interface{}, error) {
	return m.Replicator.Replicate(ctx, content)
}

// Close stops the member and releases its storage.
func (m *Member) Close() error {
	var cl lifecycle.Closer
	if m.unregister != nil {
		m.unregister()
	}
	if m.Applier != nil {
		cl.Close(m.Applier)
	}
	if m.Downloads != nil {
		cl.Close(m.Downloads)
	}
	if m.Machine != nil {
		cl.Close(m.Machine)
	}
	if m.db != nil {
		cl.Close(m.db)
	}
	return cl.Done()
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *Member) PrometheusCollectors() []prometheus.Collector {
	var cs []prometheus.Collector
	cs = append(cs, m.Machine.PrometheusCollectors()...)
	cs = append(cs, m.cacheMetrics.PrometheusCollectors()...)
	cs = append(cs, m.Applier.PrometheusCollectors()...)
	cs = append(cs, m.Commands.PrometheusCollectors()...)
	cs = append(cs, m.Replicator.PrometheusCollectors()...)
	cs = append(cs, m.Downloader.PrometheusCollectors()...)
	return cs
}

// upstream serves catch-up requests from the members of the same cluster.
// A member that cannot be reached over the network cannot serve them.
type upstream struct {
	cluster *Cluster
	myself  coreraft.MemberID
}

func (u *upstream) reach(ctx context.Context, id coreraft.MemberID) (*Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := u.cluster.Member(id)
	if m == nil {
		return nil, errors.Errorf(errors.ENotFound, "unknown member %s", id)
	}
	if !u.cluster.Network.Connected(u.myself, id) || !u.cluster.Network.Connected(id, u.myself) {
		return nil, errors.Errorf(errors.EUnavailable, "member %s unreachable", id)
	}
	if m.Applier.Panicked() {
		return nil, errors.Errorf(errors.EUnavailable, "member %s panicked", id)
	}
	return m, nil
}

func (u *upstream) CoreSnapshot(ctx context.Context, id coreraft.MemberID) (*catchup.CoreSnapshot, error) {
	m, err := u.reach(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Commands.Snapshot()
}

func (u *upstream) PullEntries(ctx context.Context, id coreraft.MemberID, fromIndex int64) ([]*coreraft.LogEntry, error) {
	m, err := u.reach(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Commands.CommittedEntries(fromIndex)
}
