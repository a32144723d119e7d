package raft

import (
	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/raftlog/cache"
)

// cachedLog serves entry reads from the in-flight cache before falling back
// to the log. Writes go through the machine, which keeps both in step.
type cachedLog struct {
	coreraft.RaftLog
	cache cache.InFlightCache
}

func (l *cachedLog) ReadEntry(index int64) (*coreraft.LogEntry, error) {
	if e := l.cache.Get(index); e != nil {
		return e, nil
	}
	return l.RaftLog.ReadEntry(index)
}

func (l *cachedLog) ReadEntryTerm(index int64) (int64, error) {
	if e := l.cache.Get(index); e != nil {
		return e.Term, nil
	}
	return l.RaftLog.ReadEntryTerm(index)
}
