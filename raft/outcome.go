package raft

import (
	"github.com/influxdata/coreraft"
)

// Outcome is the complete effect of handling one message: the next values
// of the member's state, the log operations to perform and the messages to
// send. It is produced by Handle and consumed exactly once by a Machine.
type Outcome struct {
	Role          Role
	Term          int64
	Leader        coreraft.MemberID
	LeaderCommit  int64
	VotedFor      coreraft.MemberID
	VotesForMe    coreraft.MemberSet
	PreVotesForMe coreraft.MemberSet
	CommitIndex   int64

	// HeartbeatResponses holds the followers heard from since the leader last
	// checked for a quorum.
	HeartbeatResponses               coreraft.MemberSet
	LastLogIndexBeforeWeBecameLeader int64
	FollowerStates                   FollowerStates

	// ElectionTimeoutRenewed asks the machine to restart the election timer.
	ElectionTimeoutRenewed bool
	// NeedsFreshSnapshot signals that the log cannot be repaired by appends.
	NeedsFreshSnapshot bool

	// Log operations, performed in this order: truncate, append, prune.
	// An index of -1 means no operation.
	TruncateIndex   int64
	EntriesToAppend []*coreraft.LogEntry
	PruneIndex      int64

	Outgoing []Directed

	// Failure is set when the message exposed a broken invariant, such as a
	// request to truncate committed entries. Nothing else in the outcome
	// may be applied.
	Failure error
}

// newOutcome starts an outcome that leaves everything as it is in s.
func newOutcome(s ReadableRaftState) *Outcome {
	return &Outcome{
		Role:                             s.Role(),
		Term:                             s.Term(),
		Leader:                           s.Leader(),
		LeaderCommit:                     s.LeaderCommit(),
		VotedFor:                         s.VotedFor(),
		VotesForMe:                       s.VotesForMe(),
		PreVotesForMe:                    s.PreVotesForMe(),
		CommitIndex:                      s.CommitIndex(),
		HeartbeatResponses:               s.HeartbeatResponses(),
		LastLogIndexBeforeWeBecameLeader: s.LastLogIndexBeforeWeBecameLeader(),
		FollowerStates:                   s.FollowerStates(),
		TruncateIndex:                    -1,
		PruneIndex:                       -1,
	}
}

// setNextTerm moves to term, forgetting any vote cast in an earlier term.
func (o *Outcome) setNextTerm(term int64) {
	if term > o.Term {
		o.Term = term
		o.VotedFor = coreraft.MemberID{}
	}
}

func (o *Outcome) send(to coreraft.MemberID, m Message) {
	o.Outgoing = append(o.Outgoing, Directed{To: to, Message: m})
}

func (o *Outcome) fail(err error) *Outcome {
	o.Failure = err
	return o
}

// stepDown turns the member into a follower of an unknown leader in term.
func (o *Outcome) stepDown(term int64) {
	o.setNextTerm(term)
	o.Role = Follower
	o.Leader = coreraft.MemberID{}
	o.VotesForMe = coreraft.NewMemberSet()
	o.PreVotesForMe = coreraft.NewMemberSet()
	o.HeartbeatResponses = coreraft.NewMemberSet()
	o.FollowerStates = FollowerStates{}
	o.LastLogIndexBeforeWeBecameLeader = -1
}

// appendIndex returns the last index the log will hold once the outcome is applied.
func (o *Outcome) appendIndex(log coreraft.ReadableRaftLog) int64 {
	base := log.AppendIndex()
	if o.TruncateIndex >= 0 {
		base = o.TruncateIndex - 1
	}
	return base + int64(len(o.EntriesToAppend))
}

// entryTerm returns the term of index as it will be once the outcome is applied.
func (o *Outcome) entryTerm(log coreraft.ReadableRaftLog, index int64) (int64, error) {
	if n := len(o.EntriesToAppend); n > 0 {
		first := o.appendIndex(log) - int64(n) + 1
		if index >= first {
			if index-first >= int64(n) {
				return -1, nil
			}
			return o.EntriesToAppend[index-first].Term, nil
		}
	}
	return log.ReadEntryTerm(index)
}

// entry returns the entry at index as it will be once the outcome is applied.
func (o *Outcome) entry(log coreraft.ReadableRaftLog, index int64) (*coreraft.LogEntry, error) {
	if n := len(o.EntriesToAppend); n > 0 {
		first := o.appendIndex(log) - int64(n) + 1
		if index >= first {
			return o.EntriesToAppend[index-first], nil
		}
	}
	return log.ReadEntry(index)
}
