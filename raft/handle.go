package raft

import (
	"fmt"

	"github.com/influxdata/coreraft"
)

// Handle computes the outcome of msg for a member in state s. It reads the
// member's log but performs no other I/O and never modifies s; every effect
// is described by the returned Outcome. Handle always returns an outcome;
// a broken invariant is reported through Outcome.Failure.
func Handle(s ReadableRaftState, msg Message) *Outcome {
	o := newOutcome(s)

	var err error
	switch s.Role() {
	case Follower:
		err = handleFollower(s, o, msg)
	case PreCandidate:
		err = handlePreCandidate(s, o, msg)
	case Candidate:
		err = handleCandidate(s, o, msg)
	case Leader:
		err = handleLeader(s, o, msg)
	default:
		err = fmt.Errorf("unknown role %d", s.Role())
	}
	if err != nil {
		return o.fail(err)
	}
	return o
}

func handleFollower(s ReadableRaftState, o *Outcome, msg Message) error {
	switch m := msg.(type) {
	case *Heartbeat:
		return handleHeartbeat(s, o, m)
	case *AppendEntriesRequest:
		return handleAppendEntries(s, o, m)
	case *LogCompactionInfo:
		return handleLogCompactionInfo(s, o, m)
	case *VoteRequest:
		return handleVoteRequest(s, o, m)
	case *PreVoteRequest:
		return handlePreVoteRequest(s, o, m)
	case *VoteResponse, *PreVoteResponse, *AppendEntriesResponse, *HeartbeatResponse:
		stepDownOnLaterTerm(o, msg)
	case *ElectionTimeout:
		return startElection(s, o)
	case *PruneRequest:
		handlePrune(o, m)
	case *HeartbeatTimeout, *NewEntryRequest, *NewEntryBatchRequest:
		// Only a leader acts on these.
	}
	return nil
}

func handlePreCandidate(s ReadableRaftState, o *Outcome, msg Message) error {
	switch m := msg.(type) {
	case *Heartbeat:
		if m.Term >= o.Term {
			o.stepDown(m.Term)
		}
		return handleHeartbeat(s, o, m)
	case *AppendEntriesRequest:
		if m.Term >= o.Term {
			o.stepDown(m.Term)
		}
		return handleAppendEntries(s, o, m)
	case *LogCompactionInfo:
		if m.Term >= o.Term {
			o.stepDown(m.Term)
		}
		return handleLogCompactionInfo(s, o, m)
	case *VoteRequest:
		return handleVoteRequest(s, o, m)
	case *PreVoteRequest:
		return handlePreVoteRequest(s, o, m)
	case *PreVoteResponse:
		if m.Term > o.Term {
			o.stepDown(m.Term)
			return nil
		} else if m.Term < o.Term || !m.Granted {
			return nil
		}
		o.PreVotesForMe = o.PreVotesForMe.With(m.From)
		if s.VotingMembers().IsQuorum(o.PreVotesForMe.With(s.Myself())) {
			return startRealElection(s, o)
		}
	case *VoteResponse, *AppendEntriesResponse, *HeartbeatResponse:
		stepDownOnLaterTerm(o, msg)
	case *ElectionTimeout:
		// The pre-election did not reach a quorum in time.
		o.stepDown(o.Term)
		o.ElectionTimeoutRenewed = true
	case *PruneRequest:
		handlePrune(o, m)
	case *HeartbeatTimeout, *NewEntryRequest, *NewEntryBatchRequest:
	}
	return nil
}

func handleCandidate(s ReadableRaftState, o *Outcome, msg Message) error {
	switch m := msg.(type) {
	case *Heartbeat:
		if m.Term >= o.Term {
			o.stepDown(m.Term)
		}
		return handleHeartbeat(s, o, m)
	case *AppendEntriesRequest:
		if m.Term >= o.Term {
			o.stepDown(m.Term)
		}
		return handleAppendEntries(s, o, m)
	case *LogCompactionInfo:
		if m.Term >= o.Term {
			o.stepDown(m.Term)
		}
		return handleLogCompactionInfo(s, o, m)
	case *VoteRequest:
		return handleVoteRequest(s, o, m)
	case *PreVoteRequest:
		return handlePreVoteRequest(s, o, m)
	case *VoteResponse:
		if m.Term > o.Term {
			o.stepDown(m.Term)
			return nil
		} else if m.Term < o.Term || !m.Granted {
			return nil
		}
		o.VotesForMe = o.VotesForMe.With(m.From)
		if s.VotingMembers().IsQuorum(o.VotesForMe) {
			return becomeLeader(s, o)
		}
	case *PreVoteResponse, *AppendEntriesResponse, *HeartbeatResponse:
		stepDownOnLaterTerm(o, msg)
	case *ElectionTimeout:
		// Split vote or lost messages: try again in the next term.
		return startRealElection(s, o)
	case *PruneRequest:
		handlePrune(o, m)
	case *HeartbeatTimeout, *NewEntryRequest, *NewEntryBatchRequest:
	}
	return nil
}

// startElection begins a pre-election or a real election on a follower's
// election timeout, unless the member refuses to lead.
func startElection(s ReadableRaftState, o *Outcome) error {
	o.ElectionTimeoutRenewed = true
	if s.Options().RefuseToBeLeader {
		return nil
	}
	if !s.Options().PreVote {
		return startRealElection(s, o)
	}

	started, err := StartPreElection(s, o)
	if err != nil || !started {
		return err
	}
	o.Role = PreCandidate
	o.Leader = coreraft.MemberID{}
	o.PreVotesForMe = coreraft.NewMemberSet()
	if s.VotingMembers().IsQuorum(coreraft.NewMemberSet(s.Myself())) {
		return startRealElection(s, o)
	}
	return nil
}

func startRealElection(s ReadableRaftState, o *Outcome) error {
	started, err := StartRealElection(s, o)
	if err != nil || !started {
		return err
	}
	o.Role = Candidate
	o.Leader = coreraft.MemberID{}
	o.PreVotesForMe = coreraft.NewMemberSet()
	o.VotesForMe = coreraft.NewMemberSet(s.Myself())
	o.ElectionTimeoutRenewed = true
	if s.VotingMembers().IsQuorum(o.VotesForMe) {
		return becomeLeader(s, o)
	}
	return nil
}

// stepDownOnLaterTerm makes the member a follower if msg comes from a later term.
func stepDownOnLaterTerm(o *Outcome, msg Message) {
	if term := msg.Header().Term; term > o.Term {
		o.stepDown(term)
	}
}
