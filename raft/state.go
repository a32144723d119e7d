package raft

import (
	"github.com/influxdata/coreraft"
)

// Options are the protocol switches Handle consults.
type Options struct {
	PreVote                    bool
	RefuseToBeLeader           bool
	MaxAppendBatch             int
	LeaderStepDownOnLostQuorum bool
}

// ReadableRaftState is the view of a member's state that Handle reads.
type ReadableRaftState interface {
	Myself() coreraft.MemberID
	VotingMembers() coreraft.MemberSet
	Role() Role
	Term() int64
	Leader() coreraft.MemberID
	LeaderCommit() int64
	VotedFor() coreraft.MemberID
	VotesForMe() coreraft.MemberSet
	PreVotesForMe() coreraft.MemberSet
	HeartbeatResponses() coreraft.MemberSet
	LastLogIndexBeforeWeBecameLeader() int64
	FollowerStates() FollowerStates
	CommitIndex() int64
	EntryLog() coreraft.ReadableRaftLog
	Options() Options
}

// State is the in-memory state of one member. It changes only through
// Update, and its owner serializes all access.
type State struct {
	myself        coreraft.MemberID
	votingMembers coreraft.MemberSet
	log           coreraft.ReadableRaftLog
	opts          Options

	role                             Role
	term                             int64
	leader                           coreraft.MemberID
	leaderCommit                     int64
	votedFor                         coreraft.MemberID
	votesForMe                       coreraft.MemberSet
	preVotesForMe                    coreraft.MemberSet
	heartbeatResponses               coreraft.MemberSet
	lastLogIndexBeforeWeBecameLeader int64
	followerStates                   FollowerStates
	commitIndex                      int64
}

// NewState returns the state of a follower in term 0 that has voted for nobody.
func NewState(myself coreraft.MemberID, members coreraft.MemberSet, log coreraft.ReadableRaftLog, opts Options) *State {
	return &State{
		myself:                           myself,
		votingMembers:                    members,
		log:                              log,
		opts:                             opts,
		role:                             Follower,
		leaderCommit:                     -1,
		votesForMe:                       coreraft.NewMemberSet(),
		preVotesForMe:                    coreraft.NewMemberSet(),
		heartbeatResponses:               coreraft.NewMemberSet(),
		lastLogIndexBeforeWeBecameLeader: -1,
		commitIndex:                      -1,
	}
}

func (s *State) Myself() coreraft.MemberID               { return s.myself }
func (s *State) VotingMembers() coreraft.MemberSet       { return s.votingMembers }
func (s *State) Role() Role                              { return s.role }
func (s *State) Term() int64                             { return s.term }
func (s *State) Leader() coreraft.MemberID               { return s.leader }
func (s *State) LeaderCommit() int64                     { return s.leaderCommit }
func (s *State) VotedFor() coreraft.MemberID             { return s.votedFor }
func (s *State) VotesForMe() coreraft.MemberSet          { return s.votesForMe }
func (s *State) PreVotesForMe() coreraft.MemberSet       { return s.preVotesForMe }
func (s *State) HeartbeatResponses() coreraft.MemberSet  { return s.heartbeatResponses }
func (s *State) LastLogIndexBeforeWeBecameLeader() int64 { return s.lastLogIndexBeforeWeBecameLeader }
func (s *State) FollowerStates() FollowerStates          { return s.followerStates }
func (s *State) CommitIndex() int64                      { return s.commitIndex }
func (s *State) EntryLog() coreraft.ReadableRaftLog      { return s.log }
func (s *State) Options() Options                        { return s.opts }

// Update takes on every state value of o. Log operations are the caller's job.
func (s *State) Update(o *Outcome) {
	s.role = o.Role
	s.term = o.Term
	s.leader = o.Leader
	s.leaderCommit = o.LeaderCommit
	s.votedFor = o.VotedFor
	s.votesForMe = o.VotesForMe
	s.preVotesForMe = o.PreVotesForMe
	s.heartbeatResponses = o.HeartbeatResponses
	s.lastLogIndexBeforeWeBecameLeader = o.LastLogIndexBeforeWeBecameLeader
	s.followerStates = o.FollowerStates
	s.commitIndex = o.CommitIndex
}

// Restore loads durable term and vote at startup.
func (s *State) Restore(term int64, votedFor coreraft.MemberID) {
	s.term = term
	s.votedFor = votedFor
}

// SetVotingMembers replaces the voting member set.
func (s *State) SetVotingMembers(members coreraft.MemberSet) {
	s.votingMembers = members
}

// SetCommitIndex moves the commit index after a snapshot install.
func (s *State) SetCommitIndex(index int64) {
	if index > s.commitIndex {
		s.commitIndex = index
	}
}
