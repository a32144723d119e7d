package coreraft

// ReadableRaftLog is the read side of the log contract. Indices start at 0;
// an empty log has an AppendIndex and PrevIndex of -1.
type ReadableRaftLog interface {
	// AppendIndex returns the index of the last appended entry.
	AppendIndex() int64

	// PrevIndex returns the index immediately before the first entry still
	// held by the log, i.e. the last index that was pruned or skipped over.
	PrevIndex() int64

	// ReadEntryTerm returns the term of the entry at index, or -1 if the
	// log does not know the index. The term of PrevIndex is retained.
	ReadEntryTerm(index int64) (int64, error)

	// ReadEntry returns the entry at index. It returns an error with code
	// ENotFound if the index has been pruned or was never appended.
	ReadEntry(index int64) (*LogEntry, error)
}

// RaftLog is the durable log contract implemented outside of the consensus
// core. Implementations must make appended entries durable before returning.
type RaftLog interface {
	ReadableRaftLog

	// Append writes entries after the current append index and returns the
	// new append index.
	Append(entries ...*LogEntry) (int64, error)

	// Truncate removes every entry from fromIndex onwards. Committed entries
	// must never be truncated; callers guarantee fromIndex > commit index.
	Truncate(fromIndex int64) error

	// Prune discards entries up to and including safeIndex where the
	// implementation sees fit and returns the new PrevIndex.
	Prune(safeIndex int64) (int64, error)

	// Skip makes the log appear as if it contained entries up to index with
	// the last one in term, discarding everything it held before. Used when
	// a snapshot replaces the log as the member's baseline.
	Skip(index, term int64) (int64, error)
}
