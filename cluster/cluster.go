// Package cluster assembles consensus members and connects them over an
// in-process network.
package cluster

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/pkg/lifecycle"
	"github.com/influxdata/coreraft/raft"
	"github.com/influxdata/coreraft/raft/schedule"
	"github.com/influxdata/coreraft/transport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultGroup is the server group of members not assigned to one.
const DefaultGroup = "default"

// Cluster is a set of members sharing one network. A synchronous cluster
// delivers messages and timeouts only when told to, which makes it
// deterministic; an asynchronous one runs on goroutines.
type Cluster struct {
	ID      coreraft.ClusterID
	Network *transport.Network

	log       *zap.Logger
	config    Config
	clock     clock.Clock
	scheduler schedule.JobScheduler
	timers    schedule.JobScheduler
	queue     *schedule.QueueScheduler
	sync      bool
	seed      int64
	groups    map[coreraft.MemberID]string

	ids     []coreraft.MemberID
	members map[coreraft.MemberID]*Member
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithClock sets the clock driving timers and retries.
func WithClock(clk clock.Clock) Option {
	return func(c *Cluster) { c.clock = clk }
}

// WithSynchronousDelivery makes the cluster deliver messages only from
// ProcessMessages and run downloads on the calling goroutine. Expired timers
// run from Tick once the clock has been advanced.
func WithSynchronousDelivery() Option {
	return func(c *Cluster) { c.sync = true }
}

// WithMemberIDs names the members instead of generating random ids.
func WithMemberIDs(ids ...coreraft.MemberID) Option {
	return func(c *Cluster) { c.ids = append([]coreraft.MemberID(nil), ids...) }
}

// WithClusterID sets the id every message is tagged with.
func WithClusterID(id coreraft.ClusterID) Option {
	return func(c *Cluster) { c.ID = id }
}

// WithServerGroups assigns members to groups. Members download snapshots
// from a random member of their own group when the leader cannot serve.
func WithServerGroups(groups map[coreraft.MemberID]string) Option {
	return func(c *Cluster) { c.groups = groups }
}

// WithSeed seeds the random choices of upstream members.
func WithSeed(seed int64) Option {
	return func(c *Cluster) { c.seed = seed }
}

// New returns a cluster of size members. Members are assembled by Open.
func New(log *zap.Logger, size int, config Config, opts ...Option) (*Cluster, error) {
	if err := config.Validate(); err != nil {
		return nil, &errors.Error{Code: errors.EInvalid, Op: "cluster.New", Err: err}
	} else if size < 1 {
		return nil, errors.Errorf(errors.EInvalid, "cluster needs at least one member")
	}

	c := &Cluster{
		ID:      coreraft.NewClusterID(),
		log:     log,
		config:  config,
		clock:   clock.New(),
		seed:    time.Now().UnixNano(),
		members: make(map[coreraft.MemberID]*Member),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.ids == nil {
		for i := 0; i < size; i++ {
			c.ids = append(c.ids, coreraft.NewMemberID())
		}
	} else if len(c.ids) != size {
		return nil, errors.Errorf(errors.EInvalid, "%d member ids for %d members", len(c.ids), size)
	}

	if c.groups == nil {
		c.groups = make(map[coreraft.MemberID]string, size)
		for _, id := range c.ids {
			c.groups[id] = DefaultGroup
		}
	}
	if c.sync {
		// Timer jobs wait for Tick so they never run inside a clock callback.
		c.queue = schedule.NewQueueScheduler()
		c.scheduler, c.timers = schedule.SyncScheduler{}, c.queue
	} else {
		s := schedule.NewGoroutineScheduler()
		c.scheduler, c.timers = s, s
	}

	c.Network = transport.NewNetwork(log, c.ID, c.clock)
	for _, id := range c.ids {
		c.members[id] = newMember(c, id)
	}
	return c, nil
}

// Open assembles every member and starts their election timers. If one
// member fails to open, those opened before it are closed again.
func (c *Cluster) Open(ctx context.Context) error {
	var o lifecycle.Opener
	for _, id := range c.ids {
		o.Open(ctx, c.members[id])
	}
	if err := o.Done(); err != nil {
		return err
	}

	for _, id := range c.ids {
		m := c.members[id]
		c.Network.Register(id, m)
		m.start(c.deliverFunc(m))
	}
	c.log.Info("Cluster started",
		zap.Stringer("cluster_id", c.ID),
		zap.Int("members", len(c.ids)),
		zap.Bool("synchronous", c.sync))
	return nil
}

func (c *Cluster) deliverFunc(m *Member) func(raft.Message) {
	if !c.sync {
		return m.Applier.Deliver
	}
	return func(msg raft.Message) {
		if err := m.Applier.Process(context.Background(), raft.ClusterIDAwareMessage{ClusterID: c.ID, Message: msg}); err != nil {
			c.log.Debug("Local message not processed", zap.Stringer("member", m.ID), zap.Error(err))
		}
	}
}

func (c *Cluster) memberSet() coreraft.MemberSet {
	return coreraft.NewMemberSet(c.ids...)
}

// Run delivers messages and applies them on every member until ctx is
// done. It fails for a synchronous cluster.
func (c *Cluster) Run(ctx context.Context) error {
	if c.sync {
		return &errors.Error{Code: errors.EInvalid, Op: "cluster.Run", Msg: "synchronous cluster is driven by ProcessMessages"}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Network.Run(ctx) })
	for _, id := range c.ids {
		m := c.members[id]
		g.Go(func() error {
			err := m.Applier.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// ProcessMessages delivers every queued message, including those sent in
// response, and returns how many were delivered.
func (c *Cluster) ProcessMessages(ctx context.Context) (int, error) {
	return c.Network.ProcessMessages(ctx)
}

// Tick advances a mock clock by d, runs the timeouts that became due and
// then delivers the resulting messages.
func (c *Cluster) Tick(ctx context.Context, d time.Duration) error {
	mock, ok := c.clock.(*clock.Mock)
	if !ok {
		return &errors.Error{Code: errors.EInvalid, Op: "cluster.Tick", Msg: "cluster does not run on a mock clock"}
	}
	mock.Add(d)
	if c.queue != nil {
		c.queue.RunPending()
	}
	_, err := c.ProcessMessages(ctx)
	return err
}

// Member returns the member with id, or nil.
func (c *Cluster) Member(id coreraft.MemberID) *Member {
	return c.members[id]
}

// Members returns every member in the order of their ids.
func (c *Cluster) Members() []*Member {
	members := make([]*Member, len(c.ids))
	for i, id := range c.ids {
		members[i] = c.members[id]
	}
	return members
}

// Leader returns the leader of the latest term, or nil if no member leads.
func (c *Cluster) Leader() *Member {
	var leader *Member
	var term int64 = -1
	for _, id := range c.ids {
		m := c.members[id]
		if m.Machine.Role() != raft.Leader {
			continue
		}
		if t := m.Machine.Term(); t > term {
			leader, term = m, t
		}
	}
	return leader
}

// Close stops every member and waits for background jobs to return.
func (c *Cluster) Close() error {
	var cl lifecycle.Closer
	for _, id := range c.ids {
		cl.Close(c.members[id])
	}
	if s, ok := c.scheduler.(*schedule.GoroutineScheduler); ok {
		s.Wait()
	}
	return cl.Done()
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (c *Cluster) PrometheusCollectors() []prometheus.Collector {
	cs := c.Network.PrometheusCollectors()
	for _, id := range c.ids {
		cs = append(cs, c.members[id].PrometheusCollectors()...)
	}
	return cs
}
