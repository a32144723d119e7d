package raft

// handleHeartbeat accepts a heartbeat from a current leader and moves the
// commit index up to the leader's if our history agrees at that index.
func handleHeartbeat(s ReadableRaftState, o *Outcome, hb *Heartbeat) error {
	if hb.Term < o.Term {
		return nil
	}

	o.setNextTerm(hb.Term)
	o.Leader = hb.From
	o.LeaderCommit = hb.CommitIndex
	o.ElectionTimeoutRenewed = true
	o.send(hb.From, &HeartbeatResponse{Base: Base{From: s.Myself(), Term: o.Term}})

	matches, err := logHistoryMatches(s.EntryLog(), hb.CommitIndex, hb.CommitIndexTerm)
	if err != nil {
		return err
	} else if matches {
		commitToLogOnUpdate(o, hb.CommitIndex, hb.CommitIndex)
	}
	return nil
}
