package raft

import (
	"sort"

	"github.com/influxdata/coreraft"
)

func handleLeader(s ReadableRaftState, o *Outcome, msg Message) error {
	switch m := msg.(type) {
	case *HeartbeatTimeout:
		return sendHeartbeats(s, o)
	case *HeartbeatResponse:
		if m.Term > o.Term {
			o.stepDown(m.Term)
		} else if m.Term == o.Term {
			o.HeartbeatResponses = o.HeartbeatResponses.With(m.From)
		}
	case *AppendEntriesResponse:
		return handleAppendEntriesResponse(s, o, m)
	case *Heartbeat:
		if m.Term < o.Term {
			return nil
		}
		o.stepDown(m.Term)
		return handleHeartbeat(s, o, m)
	case *AppendEntriesRequest:
		if m.Term >= o.Term {
			o.stepDown(m.Term)
		}
		return handleAppendEntries(s, o, m)
	case *LogCompactionInfo:
		if m.Term <= o.Term {
			return nil
		}
		o.stepDown(m.Term)
		return handleLogCompactionInfo(s, o, m)
	case *VoteRequest:
		return handleVoteRequest(s, o, m)
	case *PreVoteRequest:
		return handlePreVoteRequest(s, o, m)
	case *VoteResponse, *PreVoteResponse:
		stepDownOnLaterTerm(o, msg)
	case *ElectionTimeout:
		checkQuorum(s, o)
	case *NewEntryRequest:
		return appendNewEntries(s, o, []coreraft.ReplicatedContent{m.Content})
	case *NewEntryBatchRequest:
		return appendNewEntries(s, o, m.Contents)
	case *PruneRequest:
		handlePrune(o, m)
	}
	return nil
}

// becomeLeader takes over leadership in the outcome's term and appends a
// barrier entry, which lets entries of earlier terms commit along with it.
func becomeLeader(s ReadableRaftState, o *Outcome) error {
	log := s.EntryLog()
	appendIndex := o.appendIndex(log)

	o.Role = Leader
	o.Leader = s.Myself()
	o.VotesForMe = coreraft.NewMemberSet()
	o.PreVotesForMe = coreraft.NewMemberSet()
	o.HeartbeatResponses = coreraft.NewMemberSet()
	o.LastLogIndexBeforeWeBecameLeader = appendIndex

	var states FollowerStates
	for _, m := range s.VotingMembers().Members() {
		if m != s.Myself() {
			states = states.With(m, FollowerState{MatchIndex: -1, NextIndex: appendIndex + 1})
		}
	}
	o.FollowerStates = states

	return appendNewEntries(s, o, []coreraft.ReplicatedContent{coreraft.NewLeaderBarrier{}})
}

// appendNewEntries appends contents in the leader's term and ships them to
// every follower that has been sent everything before them.
func appendNewEntries(s ReadableRaftState, o *Outcome, contents []coreraft.ReplicatedContent) error {
	if len(contents) == 0 {
		return nil
	}

	log := s.EntryLog()
	prevIndex := o.appendIndex(log)
	prevTerm, err := o.entryTerm(log, prevIndex)
	if err != nil {
		return err
	}

	entries := make([]*coreraft.LogEntry, len(contents))
	for i, c := range contents {
		entries[i] = coreraft.NewLogEntry(o.Term, c)
	}
	o.EntriesToAppend = append(o.EntriesToAppend, entries...)
	last := prevIndex + int64(len(entries))

	o.FollowerStates.Each(func(id coreraft.MemberID, fs FollowerState) {
		if fs.NextIndex != prevIndex+1 {
			return
		}
		o.send(id, &AppendEntriesRequest{
			Base:         Base{From: s.Myself(), Term: o.Term},
			PrevLogIndex: prevIndex,
			PrevLogTerm:  prevTerm,
			Entries:      entries,
			LeaderCommit: o.CommitIndex,
		})
		fs.NextIndex = last + 1
		o.FollowerStates = o.FollowerStates.With(id, fs)
	})

	return advanceCommitIndex(s, o)
}

func handleAppendEntriesResponse(s ReadableRaftState, o *Outcome, res *AppendEntriesResponse) error {
	if res.Term > o.Term {
		o.stepDown(res.Term)
		return nil
	} else if res.Term < o.Term || !s.VotingMembers().Contains(res.From) {
		return nil
	}
	o.HeartbeatResponses = o.HeartbeatResponses.With(res.From)

	fs := o.FollowerStates.Get(res.From)
	if !res.Success {
		// Walk back towards the follower's log, never below what it has acked.
		next := fs.NextIndex - 1
		if res.AppendIndex+1 < next {
			next = res.AppendIndex + 1
		}
		if next < fs.MatchIndex+1 {
			next = fs.MatchIndex + 1
		}
		if next < 0 {
			next = 0
		}
		return shipEntries(s, o, res.From, fs, next)
	}

	if res.MatchIndex > fs.MatchIndex {
		fs.MatchIndex = res.MatchIndex
	}
	if fs.NextIndex < fs.MatchIndex+1 {
		fs.NextIndex = fs.MatchIndex + 1
	}
	o.FollowerStates = o.FollowerStates.With(res.From, fs)

	if err := advanceCommitIndex(s, o); err != nil {
		return err
	}
	if fs.NextIndex <= o.appendIndex(s.EntryLog()) {
		return shipEntries(s, o, res.From, fs, fs.NextIndex)
	}
	return nil
}

// shipEntries sends follower id a batch starting at from, or tells it the
// log was compacted if those entries are gone.
func shipEntries(s ReadableRaftState, o *Outcome, id coreraft.MemberID, fs FollowerState, from int64) error {
	log := s.EntryLog()
	if from <= log.PrevIndex() {
		prevTerm, err := log.ReadEntryTerm(log.PrevIndex())
		if err != nil {
			return err
		}
		o.send(id, &LogCompactionInfo{
			Base:      Base{From: s.Myself(), Term: o.Term},
			PrevIndex: log.PrevIndex(),
			PrevTerm:  prevTerm,
		})
		return nil
	}

	appendIndex := o.appendIndex(log)
	if from > appendIndex+1 {
		from = appendIndex + 1
	}
	last := appendIndex
	if batch := int64(s.Options().MaxAppendBatch); batch > 0 && from+batch-1 < last {
		last = from + batch - 1
	}

	prevTerm, err := o.entryTerm(log, from-1)
	if err != nil {
		return err
	}
	entries := make([]*coreraft.LogEntry, 0, last-from+1)
	for i := from; i <= last; i++ {
		e, err := o.entry(log, i)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	o.send(id, &AppendEntriesRequest{
		Base:         Base{From: s.Myself(), Term: o.Term},
		PrevLogIndex: from - 1,
		PrevLogTerm:  prevTerm,
		Entries:      entries,
		LeaderCommit: o.CommitIndex,
	})
	fs.NextIndex = last + 1
	o.FollowerStates = o.FollowerStates.With(id, fs)
	return nil
}

// sendHeartbeats asserts leadership to every follower and re-ships entries
// to any follower that has not acknowledged the whole log.
func sendHeartbeats(s ReadableRaftState, o *Outcome) error {
	log := s.EntryLog()
	commitTerm, err := o.entryTerm(log, o.CommitIndex)
	if err != nil {
		return err
	}

	hb := &Heartbeat{
		Base:            Base{From: s.Myself(), Term: o.Term},
		CommitIndex:     o.CommitIndex,
		CommitIndexTerm: commitTerm,
	}
	for _, m := range s.VotingMembers().Members() {
		if m != s.Myself() {
			o.send(m, hb)
		}
	}

	appendIndex := o.appendIndex(log)
	for _, m := range s.VotingMembers().Members() {
		if m == s.Myself() {
			continue
		}
		fs := o.FollowerStates.Get(m)
		if fs.MatchIndex >= appendIndex {
			continue
		}
		from := fs.NextIndex
		if from > appendIndex {
			from = appendIndex
		}
		if from < fs.MatchIndex+1 {
			from = fs.MatchIndex + 1
		}
		if err := shipEntries(s, o, m, fs, from); err != nil {
			return err
		}
	}
	return nil
}

// checkQuorum steps the leader down if it did not hear from a majority
// since the last election timeout.
func checkQuorum(s ReadableRaftState, o *Outcome) {
	o.ElectionTimeoutRenewed = true
	if s.Options().LeaderStepDownOnLostQuorum &&
		!s.VotingMembers().IsQuorum(o.HeartbeatResponses.With(s.Myself())) {
		o.stepDown(o.Term)
		return
	}
	o.HeartbeatResponses = coreraft.NewMemberSet()
}

// advanceCommitIndex commits the highest index held by a majority, provided
// the entry there belongs to the current term. Entries of earlier terms
// commit only indirectly, with a later entry of this term.
func advanceCommitIndex(s ReadableRaftState, o *Outcome) error {
	log := s.EntryLog()
	members := s.VotingMembers().Members()
	if len(members) == 0 {
		return nil
	}

	matches := make([]int64, 0, len(members))
	for _, m := range members {
		if m == s.Myself() {
			matches = append(matches, o.appendIndex(log))
		} else {
			matches = append(matches, o.FollowerStates.Get(m).MatchIndex)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })

	quorumIndex := matches[len(matches)/2]
	if quorumIndex <= o.CommitIndex {
		return nil
	}
	term, err := o.entryTerm(log, quorumIndex)
	if err != nil {
		return err
	}
	if term == o.Term {
		o.CommitIndex = quorumIndex
		o.LeaderCommit = quorumIndex
	}
	return nil
}
