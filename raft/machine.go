package raft

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/logger"
	"github.com/influxdata/coreraft/raft/schedule"
	"github.com/influxdata/coreraft/raftlog/cache"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	ElectionTimerName  schedule.TimerName = "RAFT_ELECTION"
	HeartbeatTimerName schedule.TimerName = "RAFT_HEARTBEAT"
)

// ConsensusOutcome is what the rest of the member needs to know after the
// machine handled a message.
type ConsensusOutcome struct {
	CommitIndex        int64
	NeedsFreshSnapshot bool
}

// LeaderInfo identifies the leader a member follows. A zero Leader means the
// member does not know of one.
type LeaderInfo struct {
	Leader coreraft.MemberID
	Term   int64
}

// LeaderListener is told about every change of the known leader.
type LeaderListener interface {
	OnLeaderSwitch(info LeaderInfo)
}

// LeaderListenerFunc adapts a function to LeaderListener.
type LeaderListenerFunc func(info LeaderInfo)

// OnLeaderSwitch calls f.
func (f LeaderListenerFunc) OnLeaderSwitch(info LeaderInfo) { f(info) }

// SnapshotState is the consensus part of a snapshot: the log position it
// replaces and the voting members at that position.
type SnapshotState struct {
	PrevIndex int64
	PrevTerm  int64
	Members   coreraft.MemberSet
}

// Machine owns the state of one member and applies outcomes to it. All
// methods are safe for concurrent use; outcomes are applied one at a time.
type Machine struct {
	myself   coreraft.MemberID
	config   Config
	raftLog  coreraft.RaftLog
	cache    cache.InFlightCache
	storage  StateStorage
	outbound Outbound
	log      *zap.Logger
	metrics  *machineMetrics

	electionTimer  *schedule.Timer
	heartbeatTimer *schedule.Timer

	mu        sync.Mutex
	state     *State
	renewals  uint64
	deliver   func(Message)
	panicked  bool
	listeners map[int]LeaderListener
	nextID    int
}

// NewMachine returns a machine for myself that restores its term state from
// storage. It stays passive until PostRecoveryActions is called.
func NewMachine(
	log *zap.Logger,
	myself coreraft.MemberID,
	members coreraft.MemberSet,
	c Config,
	raftLog coreraft.RaftLog,
	inFlight cache.InFlightCache,
	storage StateStorage,
	outbound Outbound,
	timers *schedule.TimerService,
) (*Machine, error) {
	if err := c.Validate(); err != nil {
		return nil, &errors.Error{Code: errors.EInvalid, Op: "raft.NewMachine", Err: err}
	}
	ts, err := storage.ReadTermState()
	if err != nil {
		return nil, &errors.Error{
			Code: errors.EInternal,
			Op:   "raft.NewMachine",
			Msg:  "failed to read term state",
			Err:  err,
		}
	}

	m := &Machine{
		myself:    myself,
		config:    c,
		raftLog:   raftLog,
		cache:     inFlight,
		storage:   storage,
		outbound:  outbound,
		log:       log.With(logger.Member(myself)),
		metrics:   newMachineMetrics(prometheus.Labels{"member": myself.String()}),
		listeners: make(map[int]LeaderListener),
		renewals:  1,
	}
	m.state = NewState(myself, members, &cachedLog{RaftLog: raftLog, cache: inFlight}, c.Options())
	m.state.Restore(ts.Term, ts.VotedFor)

	m.electionTimer = timers.Create(ElectionTimerName, schedule.GroupRaftTimer, func(t *schedule.Timer) error {
		t.Reset()
		m.mu.Lock()
		renewal := m.renewals
		m.mu.Unlock()
		m.deliverLocal(&ElectionTimeout{Base: Base{From: myself}, Renewal: renewal})
		return nil
	})
	m.heartbeatTimer = timers.Create(HeartbeatTimerName, schedule.GroupRaftTimer, func(t *schedule.Timer) error {
		t.Reset()
		m.deliverLocal(&HeartbeatTimeout{Base: Base{From: myself}})
		return nil
	})

	m.metrics.term.Set(float64(ts.Term))
	m.metrics.setRole(Follower)
	m.metrics.commitIndex.Set(-1)
	m.metrics.appendIndex.Set(float64(raftLog.AppendIndex()))
	return m, nil
}

// PostRecoveryActions starts the election timer. Timer messages are handed
// to deliver, which is expected to route them back into Handle.
func (m *Machine) PostRecoveryActions(deliver func(Message)) {
	m.mu.Lock()
	m.deliver = deliver
	m.mu.Unlock()

	et := time.Duration(m.config.ElectionTimeout)
	seed := int64(xxhash.Sum64(m.myself[:]))
	m.electionTimer.Set(schedule.NewUniformRandomTimeout(et, 2*et, seed))
	m.log.Info("Raft machine started",
		logger.Term(m.Term()),
		zap.Duration("election_timeout", et),
		zap.Bool("pre_vote", m.config.PreVote))
}

func (m *Machine) deliverLocal(msg Message) {
	m.mu.Lock()
	deliver, panicked := m.deliver, m.panicked
	m.mu.Unlock()
	if deliver != nil && !panicked {
		deliver(msg)
	}
}

// Handle computes the outcome of msg and applies it.
func (m *Machine) Handle(msg Message) (ConsensusOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicked {
		return ConsensusOutcome{}, ErrPanicked
	}
	return m.handleLocked(msg)
}

func (m *Machine) handleLocked(msg Message) (ConsensusOutcome, error) {
	m.metrics.messages.WithLabelValues(msg.Type().String()).Inc()

	// A timeout that fired before the election timer was last renewed was
	// overtaken by the message that renewed it.
	if et, ok := msg.(*ElectionTimeout); ok && et.Renewal != 0 && et.Renewal != m.renewals {
		m.metrics.staleTimeouts.Inc()
		return ConsensusOutcome{CommitIndex: m.state.CommitIndex()}, nil
	}

	o := Handle(m.state, msg)
	if o.Failure != nil {
		m.metrics.failures.Inc()
		return ConsensusOutcome{}, o.Failure
	}
	if err := m.apply(o); err != nil {
		m.metrics.failures.Inc()
		return ConsensusOutcome{}, err
	}
	for _, d := range o.Outgoing {
		m.outbound.Send(d.To, d.Message)
	}
	return ConsensusOutcome{
		CommitIndex:        m.state.CommitIndex(),
		NeedsFreshSnapshot: o.NeedsFreshSnapshot,
	}, nil
}

// apply performs the log operations of o, persists its term state and
// takes it on as the member's state.
func (m *Machine) apply(o *Outcome) error {
	const op = "raft.Machine.apply"
	prevRole, prevTerm, prevLeader := m.state.Role(), m.state.Term(), m.state.Leader()

	if o.Term != prevTerm || o.VotedFor != m.state.VotedFor() {
		if err := m.storage.WriteTermState(TermState{Term: o.Term, VotedFor: o.VotedFor}); err != nil {
			return &errors.Error{Code: errors.EInternal, Op: op, Msg: "failed to persist term state", Err: err}
		}
	}

	if o.TruncateIndex >= 0 {
		if err := m.raftLog.Truncate(o.TruncateIndex); err != nil {
			return &errors.Error{Code: errors.EInternal, Op: op, Msg: "failed to truncate log", Err: err}
		}
		m.cache.Truncate(o.TruncateIndex)
		m.log.Info("Truncated log", logger.Index(o.TruncateIndex), logger.Term(o.Term))
	}

	if len(o.EntriesToAppend) > 0 {
		first := m.raftLog.AppendIndex() + 1
		if _, err := m.raftLog.Append(o.EntriesToAppend...); err != nil {
			return &errors.Error{Code: errors.EInternal, Op: op, Msg: "failed to append to log", Err: err}
		}
		for i, e := range o.EntriesToAppend {
			m.cache.Put(first+int64(i), e)
		}
	}

	if o.PruneIndex >= 0 {
		safe := o.PruneIndex
		if safe > o.CommitIndex {
			safe = o.CommitIndex
		}
		prevIndex, err := m.raftLog.Prune(safe)
		if err != nil {
			return &errors.Error{Code: errors.EInternal, Op: op, Msg: "failed to prune log", Err: err}
		}
		m.cache.Prune(prevIndex)
	}

	m.state.Update(o)

	if o.ElectionTimeoutRenewed {
		m.renewals++
		m.electionTimer.Reset()
	}
	if o.Role != prevRole {
		m.log.Info("Role changed",
			zap.Stringer("from", prevRole),
			zap.Stringer("to", o.Role),
			logger.Term(o.Term))
		m.metrics.setRole(o.Role)
		if o.Role == Leader {
			m.heartbeatTimer.Set(schedule.FixedTimeout(m.config.HeartbeatInterval))
		} else if prevRole == Leader {
			m.heartbeatTimer.Cancel()
		}
	}
	if o.Term > prevTerm && o.VotedFor == m.myself {
		m.metrics.electionsStarted.Inc()
		m.log.Info("Election started", logger.Term(o.Term))
	}
	if o.Leader != prevLeader {
		m.metrics.leaderChanges.Inc()
		m.notifyLocked(LeaderInfo{Leader: o.Leader, Term: o.Term})
	}

	m.metrics.term.Set(float64(o.Term))
	m.metrics.commitIndex.Set(float64(o.CommitIndex))
	m.metrics.appendIndex.Set(float64(m.raftLog.AppendIndex()))
	return nil
}

func (m *Machine) notifyLocked(info LeaderInfo) {
	for _, id := range m.listenerIDs() {
		m.listeners[id].OnLeaderSwitch(info)
	}
}

func (m *Machine) listenerIDs() []int {
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// RegisterListener adds l to the listeners notified of leader changes and
// tells it the current leader. Listeners run with the machine locked and
// must not call back into it. The returned func removes l again.
func (m *Machine) RegisterListener(l LeaderListener) (unregister func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	l.OnLeaderSwitch(LeaderInfo{Leader: m.state.Leader(), Term: m.state.Term()})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// TriggerElection acts as if the election timer had fired.
func (m *Machine) TriggerElection() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicked {
		return ErrPanicked
	}
	_, err := m.handleLocked(&ElectionTimeout{Base: Base{From: m.myself}})
	return err
}

// SetVotingMembers replaces the voting member set between two outcomes.
func (m *Machine) SetVotingMembers(members coreraft.MemberSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SetVotingMembers(members)
	m.log.Info("Voting members changed", zap.Stringer("members", members))
}

// InstallSnapshot makes the log start right after the snapshot and takes
// the snapshot's position as committed.
func (m *Machine) InstallSnapshot(snap SnapshotState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicked {
		return ErrPanicked
	}

	if _, err := m.raftLog.Skip(snap.PrevIndex, snap.PrevTerm); err != nil {
		return &errors.Error{
			Code: errors.EInternal,
			Op:   "raft.Machine.InstallSnapshot",
			Msg:  "failed to skip log",
			Err:  err,
		}
	}
	m.cache.Clear()
	m.state.SetCommitIndex(snap.PrevIndex)
	if snap.Members.Len() > 0 {
		m.state.SetVotingMembers(snap.Members)
	}

	m.metrics.commitIndex.Set(float64(m.state.CommitIndex()))
	m.metrics.appendIndex.Set(float64(m.raftLog.AppendIndex()))
	m.log.Info("Installed snapshot", logger.Index(snap.PrevIndex), logger.Term(snap.PrevTerm))
	return nil
}

// CoreState returns the snapshot state for a snapshot taken at index.
func (m *Machine) CoreState(index int64) (SnapshotState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	term, err := m.state.EntryLog().ReadEntryTerm(index)
	if err != nil {
		return SnapshotState{}, err
	} else if index >= 0 && term < 0 {
		return SnapshotState{}, errors.Errorf(errors.ENotFound, "no term for index %d", index)
	}
	return SnapshotState{PrevIndex: index, PrevTerm: term, Members: m.state.VotingMembers()}, nil
}

// ReadEntry reads a log entry, preferring the in-flight cache.
func (m *Machine) ReadEntry(index int64) (*coreraft.LogEntry, error) {
	return m.state.EntryLog().ReadEntry(index)
}

// Panic stops the machine. Every later call fails with ErrPanicked.
func (m *Machine) Panic() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicked {
		return
	}
	m.panicked = true
	m.electionTimer.Kill()
	m.heartbeatTimer.Kill()
	m.log.Error("Raft machine panicked", logger.Term(m.state.Term()))
}

// Close stops the timers.
func (m *Machine) Close() error {
	m.electionTimer.Kill()
	m.heartbeatTimer.Kill()
	return nil
}

func (m *Machine) Myself() coreraft.MemberID { return m.myself }

func (m *Machine) Role() Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Role()
}

func (m *Machine) Term() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Term()
}

func (m *Machine) Leader() coreraft.MemberID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Leader()
}

func (m *Machine) CommitIndex() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CommitIndex()
}

func (m *Machine) AppendIndex() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.raftLog.AppendIndex()
}

func (m *Machine) VotedFor() coreraft.MemberID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.VotedFor()
}

func (m *Machine) VotingMembers() coreraft.MemberSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.VotingMembers()
}

// Panicked reports whether Panic was called.
func (m *Machine) Panicked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.panicked
}

// PrometheusCollectors satisfies the prom.PrometheusCollector interface.
func (m *Machine) PrometheusCollectors() []prometheus.Collector {
	return m.metrics.PrometheusCollectors()
}
