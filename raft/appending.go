package raft

import (
	"github.com/influxdata/coreraft"
)

// handleAppendEntries applies the log-matching rule for a follower. The
// caller has already stepped down if the request came from a later term.
func handleAppendEntries(s ReadableRaftState, o *Outcome, req *AppendEntriesRequest) error {
	log := s.EntryLog()
	if req.Term < o.Term {
		o.send(req.From, &AppendEntriesResponse{
			Base:        Base{From: s.Myself(), Term: o.Term},
			MatchIndex:  -1,
			AppendIndex: log.AppendIndex(),
		})
		return nil
	}

	o.setNextTerm(req.Term)
	o.Leader = req.From
	o.LeaderCommit = req.LeaderCommit
	o.ElectionTimeoutRenewed = true

	matches, err := logHistoryMatches(log, req.PrevLogIndex, req.PrevLogTerm)
	if err != nil {
		return err
	} else if !matches {
		o.send(req.From, &AppendEntriesResponse{
			Base:        Base{From: s.Myself(), Term: o.Term},
			MatchIndex:  -1,
			AppendIndex: log.AppendIndex(),
		})
		return nil
	}

	// Find the first entry we do not already hold, truncating on conflict.
	base := req.PrevLogIndex + 1
	offset := 0
	for ; offset < len(req.Entries); offset++ {
		index := base + int64(offset)
		if index > log.AppendIndex() {
			break
		} else if index <= log.PrevIndex() {
			continue
		}

		term, err := log.ReadEntryTerm(index)
		if err != nil {
			return err
		}
		if term != req.Entries[offset].Term {
			if index <= s.CommitIndex() {
				return errTruncateCommitted(index, s.CommitIndex())
			}
			o.TruncateIndex = index
			break
		}
	}
	if offset < len(req.Entries) {
		o.EntriesToAppend = append(o.EntriesToAppend, req.Entries[offset:]...)
	}

	endMatchIndex := req.PrevLogIndex + int64(len(req.Entries))
	commitToLogOnUpdate(o, endMatchIndex, req.LeaderCommit)

	o.send(req.From, &AppendEntriesResponse{
		Base:        Base{From: s.Myself(), Term: o.Term},
		Success:     true,
		MatchIndex:  endMatchIndex,
		AppendIndex: o.appendIndex(log),
	})
	return nil
}

// handleLogCompactionInfo decides whether the leader's pruning has left this
// follower unable to catch up through appends.
func handleLogCompactionInfo(s ReadableRaftState, o *Outcome, info *LogCompactionInfo) error {
	if info.Term < o.Term {
		return nil
	}
	o.setNextTerm(info.Term)
	o.Leader = info.From
	o.ElectionTimeoutRenewed = true

	log := s.EntryLog()
	if info.PrevIndex > log.AppendIndex() {
		o.NeedsFreshSnapshot = true
		return nil
	}
	if info.PrevIndex > log.PrevIndex() {
		term, err := log.ReadEntryTerm(info.PrevIndex)
		if err != nil {
			return err
		}
		o.NeedsFreshSnapshot = term != info.PrevTerm
	}
	return nil
}

// logHistoryMatches reports whether the local log agrees with the leader's
// up to and including prevIndex. History at or before our own prune point is
// assumed to match, since only committed entries are ever pruned.
func logHistoryMatches(log coreraft.ReadableRaftLog, prevIndex, prevTerm int64) (bool, error) {
	if prevIndex < 0 || prevIndex <= log.PrevIndex() {
		return true, nil
	}
	term, err := log.ReadEntryTerm(prevIndex)
	if err != nil {
		return false, err
	}
	return term != -1 && term == prevTerm, nil
}

// commitToLogOnUpdate advances a follower's commit index to what the leader
// has committed, limited to what this member is known to hold.
func commitToLogOnUpdate(o *Outcome, indexOfLastNewEntry, leaderCommit int64) {
	commit := leaderCommit
	if indexOfLastNewEntry < commit {
		commit = indexOfLastNewEntry
	}
	if commit > o.CommitIndex {
		o.CommitIndex = commit
	}
}

func handlePrune(o *Outcome, req *PruneRequest) {
	o.PruneIndex = req.PruneIndex
}
