package cluster_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/cluster"
	"github.com/influxdata/coreraft/kit/prom/promtest"
	"github.com/influxdata/coreraft/raft"
	"github.com/influxdata/coreraft/raftlog/cache"
	"github.com/influxdata/coreraft/replication"
	"github.com/influxdata/coreraft/toml"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const tickStep = 10 * time.Millisecond

func newTestConfig() cluster.Config {
	c := cluster.NewConfig()
	c.Raft.ElectionTimeout = toml.Duration(time.Second)
	c.Raft.HeartbeatInterval = toml.Duration(100 * time.Millisecond)
	c.Raft.PreVote = true
	c.Cache.Type = cache.TypeUnbounded
	c.Catchup.RetryInterval = 0
	c.Replication.RetryInterval = toml.Duration(time.Second)
	return c
}

func memberIDs(n int) []coreraft.MemberID {
	ids := make([]coreraft.MemberID, n)
	for i := range ids {
		ids[i] = coreraft.MemberID{byte(i + 1)}
	}
	return ids
}

// newSyncCluster returns an opened cluster on a mock clock that only moves
// when the test ticks it.
func newSyncCluster(tb testing.TB, size int, c cluster.Config) (*cluster.Cluster, *leaderHistory) {
	tb.Helper()

	cl, err := cluster.New(zaptest.NewLogger(tb, zaptest.Level(zap.InfoLevel)), size, c,
		cluster.WithClock(clock.NewMock()),
		cluster.WithSynchronousDelivery(),
		cluster.WithMemberIDs(memberIDs(size)...),
		cluster.WithSeed(1))
	require.NoError(tb, err)
	require.NoError(tb, cl.Open(context.Background()))
	tb.Cleanup(func() { require.NoError(tb, cl.Close()) })

	h := watchLeaders(cl)
	tb.Cleanup(func() { h.check(tb) })
	return cl, h
}

// leaderHistory records the leader every member followed in every term.
type leaderHistory struct {
	mu         sync.Mutex
	leaders    map[int64]coreraft.MemberID
	violations []string
}

func watchLeaders(cl *cluster.Cluster) *leaderHistory {
	h := &leaderHistory{leaders: make(map[int64]coreraft.MemberID)}
	for _, m := range cl.Members() {
		id := m.ID
		m.Machine.RegisterListener(raft.LeaderListenerFunc(func(info raft.LeaderInfo) {
			h.observe(id, info)
		}))
	}
	return h
}

func (h *leaderHistory) observe(member coreraft.MemberID, info raft.LeaderInfo) {
	if info.Leader.IsZero() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.leaders[info.Term]; ok && prev != info.Leader {
		h.violations = append(h.violations, fmt.Sprintf("%s follows %s in term %d, which %s led", member, info.Leader, info.Term, prev))
		return
	}
	h.leaders[info.Term] = info.Leader
}

func (h *leaderHistory) check(tb testing.TB) {
	tb.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(tb, h.violations, "two leaders in one term")
}

func (h *leaderHistory) terms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.leaders)
}

func electLeader(tb testing.TB, cl *cluster.Cluster, m *cluster.Member) {
	tb.Helper()
	require.NoError(tb, m.Machine.TriggerElection())
	_, err := cl.ProcessMessages(context.Background())
	require.NoError(tb, err)
	require.Equal(tb, raft.Leader, m.Machine.Role())
	require.Same(tb, m, cl.Leader())
}

// tickUntil advances the clock in small steps until cond holds or d has
// passed on the clock.
func tickUntil(tb testing.TB, cl *cluster.Cluster, d time.Duration, cond func() bool) bool {
	tb.Helper()
	for elapsed := time.Duration(0); elapsed <= d; elapsed += tickStep {
		if cond() {
			return true
		}
		require.NoError(tb, cl.Tick(context.Background(), tickStep))
	}
	return cond()
}

// replicate submits value through m and keeps the cluster going until m
// applied it.
func replicate(tb testing.TB, cl *cluster.Cluster, m *cluster.Member, value string) int64 {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		index interface{}
		err   error
	}
	done := make(chan result, 1)
	go func() {
		index, err := m.Replicate(ctx, coreraft.ByteContent(value))
		done <- result{index, err}
	}()

	for {
		select {
		case r := <-done:
			require.NoError(tb, r.err)
			return r.index.(int64)
		default:
		}
		require.NoError(tb, cl.Tick(ctx, tickStep))
		time.Sleep(time.Millisecond)
	}
}

func values(ss ...string) [][]byte {
	vs := make([][]byte, len(ss))
	for i, s := range ss {
		vs[i] = []byte(s)
	}
	return vs
}

// Ensure a synchronous cluster elects a leader from its election timers
// alone and keeps it while heartbeats renew the followers' timers.
func TestCluster_ElectionOnTimeout(t *testing.T) {
	cl, history := newSyncCluster(t, 3, newTestConfig())

	done := make(chan struct{})
	var (
		leader *cluster.Member
		term   int64
	)
	go func() {
		defer close(done)
		if !tickUntil(t, cl, 5*time.Second, func() bool { return cl.Leader() != nil }) {
			return
		}
		leader = cl.Leader()
		term = leader.Machine.Term()
		tickUntil(t, cl, 5*time.Second, func() bool { return false })
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("ticking the cluster did not return")
	}

	require.NotNil(t, leader, "no leader after the election timeout")
	assert.Same(t, leader, cl.Leader())
	assert.Equal(t, term, leader.Machine.Term())
	assert.Equal(t, 1, history.terms())
	for _, m := range cl.Members() {
		assert.Equal(t, leader.ID, m.Machine.Leader(), "member %s", m.ID)
	}
}

// Ensure a value replicated through the leader is applied on every member.
func TestCluster_Replicate(t *testing.T) {
	cl, _ := newSyncCluster(t, 3, newTestConfig())
	members := cl.Members()
	electLeader(t, cl, members[0])

	index := replicate(t, cl, members[0], "one")
	assert.Equal(t, int64(1), index, "index 0 holds the leader's barrier")

	// Submitting through a follower goes to the leader.
	index = replicate(t, cl, members[2], "two")
	assert.Equal(t, int64(2), index)

	require.True(t, tickUntil(t, cl, time.Second, func() bool {
		for _, m := range members {
			if m.Store.Len() != 2 {
				return false
			}
		}
		return true
	}))
	for _, m := range members {
		assert.Equal(t, values("one", "two"), m.Store.Values(), "member %s", m.ID)
	}
}

// Ensure an isolated leader is replaced by a leader of a later term and
// follows it once it is reconnected.
func TestCluster_LeaderPartition(t *testing.T) {
	cl, _ := newSyncCluster(t, 3, newTestConfig())
	members := cl.Members()
	old := members[0]
	electLeader(t, cl, old)
	replicate(t, cl, old, "one")

	cl.Network.Isolate(old.ID)
	require.True(t, tickUntil(t, cl, 10*time.Second, func() bool {
		l := cl.Leader()
		return l != nil && l != old
	}), "expected a new leader")

	leader := cl.Leader()
	assert.Greater(t, leader.Machine.Term(), old.Machine.Term())
	replicate(t, cl, leader, "two")
	assert.Equal(t, values("one"), old.Store.Values(), "isolated member applied nothing new")

	cl.Network.Reconnect(old.ID)
	require.True(t, tickUntil(t, cl, 5*time.Second, func() bool {
		return old.Machine.Leader() == leader.ID && old.Store.Len() == 2
	}), "expected the old leader to follow")

	assert.Equal(t, raft.Follower, old.Machine.Role())
	assert.Equal(t, leader.Machine.Term(), old.Machine.Term())
	for _, m := range members {
		assert.Equal(t, values("one", "two"), m.Store.Values(), "member %s", m.ID)
	}
}

// Ensure a member that missed entries the leader already pruned is brought
// up to date by a snapshot download.
func TestCluster_CatchupFromSnapshot(t *testing.T) {
	c := newTestConfig()
	c.Apply.RetainEntries = 10
	cl, _ := newSyncCluster(t, 3, c)
	members := cl.Members()
	leader, lagging := members[0], members[2]
	electLeader(t, cl, leader)

	cl.Network.Isolate(lagging.ID)
	var want []string
	for i := 0; i < 60; i++ {
		v := fmt.Sprintf("value-%d", i)
		replicate(t, cl, leader, v)
		want = append(want, v)
	}
	require.Greater(t, leader.Log.PrevIndex(), lagging.Log.AppendIndex(), "leader pruned what the lagging member misses")
	assert.Zero(t, lagging.Store.Len())

	cl.Network.Reconnect(lagging.ID)
	replicate(t, cl, leader, "after")
	replicate(t, cl, leader, "final")
	want = append(want, "after", "final")

	require.True(t, tickUntil(t, cl, 5*time.Second, func() bool {
		return lagging.Store.Len() == len(want)
	}), "expected the lagging member to catch up")
	assert.Equal(t, values(want...), lagging.Store.Values())
	assert.GreaterOrEqual(t, lagging.Log.PrevIndex(), int64(50), "log restarts after the snapshot")
	assert.False(t, lagging.Applier.AwaitingSnapshot())
	assert.False(t, lagging.Applier.Panicked())

	reg := prometheus.NewRegistry()
	reg.MustRegister(lagging.Downloader.PrometheusCollectors()...)
	mfs := promtest.MustGather(t, reg)
	labels := map[string]string{"member": lagging.ID.String()}
	assert.Equal(t, 1.0, promtest.MustFindMetric(t, mfs, "raft_catchup_succeeded_total", labels).GetCounter().GetValue())
	assert.Equal(t, 0.0, promtest.MustFindMetric(t, mfs, "raft_catchup_failed_total", labels).GetCounter().GetValue())
}

// Ensure an operation submitted several times, across a change of leader,
// is applied exactly once on every member.
func TestCluster_DuplicateOperation(t *testing.T) {
	cl, _ := newSyncCluster(t, 3, newTestConfig())
	members := cl.Members()
	first, submitter := members[0], members[2]
	electLeader(t, cl, first)

	op := &replication.DistributedOperation{
		Content:       coreraft.ByteContent("once"),
		GlobalSession: replication.NewGlobalSession(submitter.ID),
		OperationID:   replication.LocalOperationID{LocalSessionID: 0, SequenceNumber: 0},
	}
	submit := func(to coreraft.MemberID) {
		cl.Network.Outbound(submitter.ID).Send(to, &raft.NewEntryRequest{Base: raft.Base{From: submitter.ID}, Content: op})
		_, err := cl.ProcessMessages(context.Background())
		require.NoError(t, err)
	}
	submit(first.ID)
	submit(first.ID)

	cl.Network.Isolate(first.ID)
	require.True(t, tickUntil(t, cl, 10*time.Second, func() bool {
		l := cl.Leader()
		return l != nil && l != first
	}))
	cl.Network.Reconnect(first.ID)
	leader := cl.Leader()
	submit(leader.ID)

	require.True(t, tickUntil(t, cl, 5*time.Second, func() bool {
		last := leader.Machine.AppendIndex()
		for _, m := range members {
			if m.Commands.LastApplied() != last {
				return false
			}
		}
		return true
	}), "expected every member to apply the whole log")

	reg := prometheus.NewRegistry()
	for _, m := range members {
		assert.Equal(t, values("once"), m.Store.Values(), "member %s", m.ID)
		reg.MustRegister(m.Commands.PrometheusCollectors()...)
	}
	mfs := promtest.MustGather(t, reg)
	for _, m := range members {
		labels := map[string]string{"member": m.ID.String()}
		assert.Equal(t, 2.0, promtest.MustFindMetric(t, mfs, "raft_apply_duplicates_total", labels).GetCounter().GetValue())
	}
}

// Ensure two members campaigning in the same term never both win.
func TestCluster_ConcurrentElections(t *testing.T) {
	c := newTestConfig()
	c.Raft.PreVote = false
	cl, history := newSyncCluster(t, 5, c)
	members := cl.Members()

	require.NoError(t, members[1].Machine.TriggerElection())
	require.NoError(t, members[3].Machine.TriggerElection())
	_, err := cl.ProcessMessages(context.Background())
	require.NoError(t, err)

	var leaders int
	for _, m := range members {
		if m.Machine.Role() == raft.Leader {
			leaders++
		}
	}
	assert.LessOrEqual(t, leaders, 1)

	// A split vote is resolved by a later election.
	require.True(t, tickUntil(t, cl, 10*time.Second, func() bool { return cl.Leader() != nil }))
	leader := cl.Leader()
	require.True(t, tickUntil(t, cl, time.Second, func() bool {
		for _, m := range members {
			if m.Machine.Leader() != leader.ID {
				return false
			}
		}
		return true
	}))
	assert.GreaterOrEqual(t, history.terms(), 1)
}

// Ensure an asynchronous cluster elects a leader and replicates on its own.
func TestCluster_Run(t *testing.T) {
	c := newTestConfig()
	c.Raft.ElectionTimeout = toml.Duration(150 * time.Millisecond)
	c.Raft.HeartbeatInterval = toml.Duration(30 * time.Millisecond)
	c.Replication.RetryInterval = toml.Duration(200 * time.Millisecond)

	cl, err := cluster.New(zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)), 3, c)
	require.NoError(t, err)
	require.NoError(t, cl.Open(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- cl.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-errc)
		require.NoError(t, cl.Close())
	}()

	require.Eventually(t, func() bool { return cl.Leader() != nil }, 10*time.Second, 10*time.Millisecond)

	var follower *cluster.Member
	for _, m := range cl.Members() {
		if m != cl.Leader() {
			follower = m
			break
		}
	}
	rctx, rcancel := context.WithTimeout(ctx, 10*time.Second)
	defer rcancel()
	_, err = follower.Replicate(rctx, coreraft.ByteContent("async"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for _, m := range cl.Members() {
			if vs := m.Store.Values(); len(vs) != 1 || !bytes.Equal(vs[0], []byte("async")) {
				return false
			}
		}
		return true
	}, 10*time.Second, 10*time.Millisecond)
}

// Ensure a synchronous cluster refuses to run on goroutines.
func TestCluster_RunSynchronous(t *testing.T) {
	cl, _ := newSyncCluster(t, 1, newTestConfig())
	assert.Error(t, cl.Run(context.Background()))
}

// Ensure members keep their term and log across a restart on bolt.
func TestCluster_Durable(t *testing.T) {
	c := newTestConfig()
	c.Dir = t.TempDir()
	ids := memberIDs(3)
	open := func() *cluster.Cluster {
		cl, err := cluster.New(zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)), 3, c,
			cluster.WithClock(clock.NewMock()),
			cluster.WithSynchronousDelivery(),
			cluster.WithMemberIDs(ids...))
		require.NoError(t, err)
		require.NoError(t, cl.Open(context.Background()))
		return cl
	}

	cl := open()
	electLeader(t, cl, cl.Members()[0])
	replicate(t, cl, cl.Members()[0], "kept")
	term := cl.Members()[0].Machine.Term()
	appendIndex := cl.Members()[0].Machine.AppendIndex()
	require.NoError(t, cl.Close())

	cl = open()
	defer cl.Close()
	m := cl.Members()[0]
	assert.Equal(t, term, m.Machine.Term())
	assert.Equal(t, m.ID, m.Machine.VotedFor())
	assert.Equal(t, appendIndex, m.Log.AppendIndex())

	e, err := m.Log.ReadEntry(appendIndex)
	require.NoError(t, err)
	assert.Equal(t, term, e.Term)
}
