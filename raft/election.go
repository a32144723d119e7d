package raft

import (
	"github.com/influxdata/coreraft"
)

// StartRealElection turns o into the start of an election for the next
// term: the member votes for itself and asks every other voting member for
// its vote. It returns false and leaves o untouched if the member is not a
// voting member.
func StartRealElection(s ReadableRaftState, o *Outcome) (bool, error) {
	members := s.VotingMembers()
	if !members.Contains(s.Myself()) {
		return false, nil
	}

	lastIndex, lastTerm, err := lastLogPosition(s.EntryLog())
	if err != nil {
		return false, err
	}

	o.setNextTerm(s.Term() + 1)
	req := &VoteRequest{
		Base:         Base{From: s.Myself(), Term: o.Term},
		Candidate:    s.Myself(),
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	}
	for _, m := range members.Members() {
		if m != s.Myself() {
			o.send(m, req)
		}
	}

	o.VotedFor = s.Myself()
	return true, nil
}

// StartPreElection asks every other voting member whether it would vote for
// this member, without changing term. It returns false if the member is not
// a voting member.
func StartPreElection(s ReadableRaftState, o *Outcome) (bool, error) {
	members := s.VotingMembers()
	if !members.Contains(s.Myself()) {
		return false, nil
	}

	lastIndex, lastTerm, err := lastLogPosition(s.EntryLog())
	if err != nil {
		return false, err
	}

	req := &PreVoteRequest{
		Base:         Base{From: s.Myself(), Term: o.Term},
		Candidate:    s.Myself(),
		LastLogIndex: lastIndex,
		LastLogTerm:  lastTerm,
	}
	for _, m := range members.Members() {
		if m != s.Myself() {
			o.send(m, req)
		}
	}
	return true, nil
}

func lastLogPosition(log coreraft.ReadableRaftLog) (int64, int64, error) {
	index := log.AppendIndex()
	term, err := log.ReadEntryTerm(index)
	if err != nil {
		return 0, 0, err
	}
	return index, term, nil
}
