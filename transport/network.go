// Package transport delivers raft messages between the members of an
// in-process cluster. Links can be cut and messages dropped to exercise
// the protocol under partitions.
package transport

import (
	"context"
	"math/rand"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/raft"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Inbox receives the messages addressed to one member. Handle may queue
// the message; Process handles it before returning.
type Inbox interface {
	Handle(ctx context.Context, msg raft.ClusterIDAwareMessage) error
	Process(ctx context.Context, msg raft.ClusterIDAwareMessage) error
}

type envelope struct {
	from, to coreraft.MemberID
	msg      raft.ClusterIDAwareMessage
}

type link struct {
	from, to coreraft.MemberID
}

// Network is an unreliable in-process message fabric. Messages are queued
// on send and delivered in order by ProcessMessages or Run.
type Network struct {
	log       *zap.Logger
	clusterID coreraft.ClusterID
	clock     clock.Clock

	mu       sync.Mutex
	inboxes  map[coreraft.MemberID]Inbox
	pending  []envelope
	isolated map[coreraft.MemberID]bool
	cut      map[link]bool
	dropRate float64
	rand     *rand.Rand
	wake     chan struct{}

	metrics *networkMetrics
}

// NewNetwork returns a network carrying messages of cluster.
func NewNetwork(log *zap.Logger, cluster coreraft.ClusterID, clk clock.Clock) *Network {
	return &Network{
		log:       log,
		clusterID: cluster,
		clock:     clk,
		inboxes:   make(map[coreraft.MemberID]Inbox),
		isolated:  make(map[coreraft.MemberID]bool),
		cut:       make(map[link]bool),
		rand:      rand.New(rand.NewSource(1)),
		wake:      make(chan struct{}, 1),
		metrics:   newNetworkMetrics(),
	}
}

// Register routes messages addressed to id to inbox.
func (n *Network) Register(id coreraft.MemberID, inbox Inbox) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inboxes[id] = inbox
}

// Outbound returns the sink through which from sends its messages.
func (n *Network) Outbound(from coreraft.MemberID) raft.Outbound {
	return raft.OutboundFunc(func(to coreraft.MemberID, msg raft.Message) {
		n.send(from, to, msg)
	})
}

func (n *Network) send(from, to coreraft.MemberID, msg raft.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.connectedLocked(from, to) || (n.dropRate > 0 && n.rand.Float64() < n.dropRate) {
		n.metrics.dropped.Inc()
		return
	}
	n.pending = append(n.pending, envelope{
		from: from,
		to:   to,
		msg:  raft.ClusterIDAwareMessage{ClusterID: n.clusterID, Message: msg, ReceivedAt: n.clock.Now()},
	})
	n.metrics.sent.Inc()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Connected returns true if messages from one member reach the other.
func (n *Network) Connected(from, to coreraft.MemberID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connectedLocked(from, to)
}

func (n *Network) connectedLocked(from, to coreraft.MemberID) bool {
	if from == to {
		return true
	}
	return !n.isolated[from] && !n.isolated[to] && !n.cut[link{from, to}]
}

// Isolate drops every message sent to or by id.
func (n *Network) Isolate(id coreraft.MemberID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.isolated[id] = true
	n.log.Info("Member isolated", zap.Stringer("member", id))
}

// Reconnect undoes Isolate.
func (n *Network) Reconnect(id coreraft.MemberID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.isolated, id)
	n.log.Info("Member reconnected", zap.Stringer("member", id))
}

// Cut drops messages between a and b in both directions.
func (n *Network) Cut(a, b coreraft.MemberID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cut[link{a, b}] = true
	n.cut[link{b, a}] = true
}

// Heal restores every link and member.
func (n *Network) Heal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.isolated = make(map[coreraft.MemberID]bool)
	n.cut = make(map[link]bool)
	n.dropRate = 0
}

// SetDropRate makes the network drop a fraction p of all messages.
func (n *Network) SetDropRate(p float64, seed int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropRate = p
	n.rand = rand.New(rand.NewSource(seed))
}

// PendingCount returns the number of messages not yet delivered.
func (n *Network) PendingCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

func (n *Network) next() (envelope, Inbox, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for len(n.pending) > 0 {
		env := n.pending[0]
		n.pending[0] = envelope{}
		n.pending = n.pending[1:]

		inbox, ok := n.inboxes[env.to]
		if !ok || !n.connectedLocked(env.from, env.to) {
			n.metrics.dropped.Inc()
			continue
		}
		return env, inbox, true
	}
	return envelope{}, nil, false
}

// ProcessMessages delivers queued messages one at a time through
// Inbox.Process, including those sent while delivering, until none are
// left. It returns the number of messages delivered.
func (n *Network) ProcessMessages(ctx context.Context) (int, error) {
	var delivered int
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		env, inbox, ok := n.next()
		if !ok {
			return delivered, nil
		}
		if err := inbox.Process(ctx, env.msg); err != nil && errors.ErrorCode(err) != errors.EPanicked {
			n.log.Debug("Message not processed",
				zap.Stringer("to", env.to),
				zap.Stringer("type", env.msg.Message.Type()),
				zap.Error(err))
		}
		n.metrics.delivered.Inc()
		delivered++
	}
}

// Run delivers queued messages through Inbox.Handle until ctx is done.
func (n *Network) Run(ctx context.Context) error {
	for {
		env, inbox, ok := n.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-n.wake:
			}
			continue
		}
		if err := inbox.Handle(ctx, env.msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			n.log.Debug("Message not delivered", zap.Stringer("to", env.to), zap.Error(err))
			continue
		}
		n.metrics.delivered.Inc()
	}
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (n *Network) PrometheusCollectors() []prometheus.Collector {
	return n.metrics.PrometheusCollectors()
}

type networkMetrics struct {
	sent      prometheus.Counter
	delivered prometheus.Counter
	dropped   prometheus.Counter
}

func newNetworkMetrics() *networkMetrics {
	const namespace = "raft"
	const subsystem = "network"

	return &networkMetrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sent_total",
			Help:      "Number of messages accepted for delivery",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "delivered_total",
			Help:      "Number of messages delivered",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dropped_total",
			Help:      "Number of messages dropped by cut links or loss",
		}),
	}
}

func (m *networkMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.sent, m.delivered, m.dropped}
}
