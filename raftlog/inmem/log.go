// Package inmem implements the raft log in memory, for tests and for
// members that rebuild their state from snapshots on restart.
package inmem

import (
	"sync"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/errors"
)

// Log is an in-memory coreraft.RaftLog.
type Log struct {
	mu        sync.RWMutex
	prevIndex int64
	prevTerm  int64
	entries   []*coreraft.LogEntry // entries[0] has index prevIndex+1
}

var _ coreraft.RaftLog = (*Log)(nil)

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{prevIndex: -1, prevTerm: -1}
}

func (l *Log) AppendIndex() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.appendIndex()
}

func (l *Log) appendIndex() int64 {
	return l.prevIndex + int64(len(l.entries))
}

func (l *Log) PrevIndex() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.prevIndex
}

func (l *Log) ReadEntryTerm(index int64) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index == l.prevIndex {
		return l.prevTerm, nil
	} else if index < l.prevIndex || index > l.appendIndex() {
		return -1, nil
	}
	return l.entries[index-l.prevIndex-1].Term, nil
}

func (l *Log) ReadEntry(index int64) (*coreraft.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if index <= l.prevIndex || index > l.appendIndex() {
		return nil, &errors.Error{
			Code: errors.ENotFound,
			Op:   "inmem.ReadEntry",
			Msg:  "no entry at index",
			Err:  errors.Errorf(errors.ENotFound, "index %d outside (%d, %d]", index, l.prevIndex, l.appendIndex()),
		}
	}
	return l.entries[index-l.prevIndex-1], nil
}

func (l *Log) Append(entries ...*coreraft.LogEntry) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.entries); n > 0 {
		last := l.entries[n-1].Term
		for _, e := range entries {
			if e.Term < last {
				return l.appendIndex(), errors.Errorf(errors.EInvalid, "entry term %d is below last term %d", e.Term, last)
			}
			last = e.Term
		}
	}
	l.entries = append(l.entries, entries...)
	return l.appendIndex(), nil
}

func (l *Log) Truncate(fromIndex int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if fromIndex <= l.prevIndex {
		return errors.Errorf(errors.EInvalid, "cannot truncate at %d, at or before prev index %d", fromIndex, l.prevIndex)
	} else if fromIndex > l.appendIndex() {
		return nil
	}

	keep := fromIndex - l.prevIndex - 1
	for i := keep; i < int64(len(l.entries)); i++ {
		l.entries[i] = nil
	}
	l.entries = l.entries[:keep]
	return nil
}

func (l *Log) Prune(safeIndex int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if safeIndex <= l.prevIndex {
		return l.prevIndex, nil
	}
	if safeIndex > l.appendIndex() {
		safeIndex = l.appendIndex()
	}

	n := safeIndex - l.prevIndex
	l.prevTerm = l.entries[n-1].Term
	l.entries = append([]*coreraft.LogEntry(nil), l.entries[n:]...)
	l.prevIndex = safeIndex
	return l.prevIndex, nil
}

func (l *Log) Skip(index, term int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if index > l.appendIndex() {
		l.entries = nil
		l.prevIndex = index
		l.prevTerm = term
	}
	return l.appendIndex(), nil
}
