package raft

import (
	"github.com/influxdata/coreraft"
)

// handleVoteRequest answers a vote request in any role. A request from a
// later term first moves the member to that term as a follower.
func handleVoteRequest(s ReadableRaftState, o *Outcome, req *VoteRequest) error {
	if req.Term > o.Term {
		o.stepDown(req.Term)
	}

	granted, err := shouldVoteFor(s, o, req.Term, req.Candidate, req.LastLogIndex, req.LastLogTerm)
	if err != nil {
		return err
	}
	if granted {
		o.VotedFor = req.Candidate
		o.ElectionTimeoutRenewed = true
	}

	o.send(req.From, &VoteResponse{
		Base:    Base{From: s.Myself(), Term: o.Term},
		Granted: granted,
	})
	return nil
}

// handlePreVoteRequest answers a pre-vote request. Pre-votes never change
// the receiver's term or vote.
func handlePreVoteRequest(s ReadableRaftState, o *Outcome, req *PreVoteRequest) error {
	// Grant a pre-vote if:
	//   1. The candidate's term is not behind ours.
	//   2. We are not leading, and as a follower we have lost our leader.
	//   3. The candidate's log is at least as up-to-date as ours.
	granted := false
	if req.Term >= o.Term && o.Role != Leader && (o.Role != Follower || o.Leader.IsZero()) {
		upToDate, err := candidateLogUpToDate(s.EntryLog(), req.LastLogIndex, req.LastLogTerm)
		if err != nil {
			return err
		}
		granted = upToDate
	}

	term := o.Term
	if granted {
		term = req.Term
	}
	o.send(req.From, &PreVoteResponse{
		Base:    Base{From: s.Myself(), Term: term},
		Granted: granted,
	})
	return nil
}

// shouldVoteFor applies the vote granting rule against the outcome's term and vote.
func shouldVoteFor(s ReadableRaftState, o *Outcome, term int64, candidate coreraft.MemberID, lastLogIndex, lastLogTerm int64) (bool, error) {
	// Deny vote if:
	//   1. Candidate is requesting a vote from an earlier term.
	//   2. Already voted for a different candidate in this term.
	//   3. Candidate log is less up-to-date than local log.
	if term < o.Term {
		return false, nil
	} else if term == o.Term && !o.VotedFor.IsZero() && o.VotedFor != candidate {
		return false, nil
	}
	return candidateLogUpToDate(s.EntryLog(), lastLogIndex, lastLogTerm)
}

func candidateLogUpToDate(log coreraft.ReadableRaftLog, lastLogIndex, lastLogTerm int64) (bool, error) {
	myIndex, myTerm, err := lastLogPosition(log)
	if err != nil {
		return false, err
	}
	return lastLogTerm > myTerm || (lastLogTerm == myTerm && lastLogIndex >= myIndex), nil
}
