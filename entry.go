package coreraft

import "fmt"

// LogEntry is a single entry of the replicated log: the term in which a
// leader appended it and the content it replicates. Entries are immutable
// once appended.
type LogEntry struct {
	Term    int64
	Content ReplicatedContent
}

// NewLogEntry returns an entry for content appended in term.
func NewLogEntry(term int64, content ReplicatedContent) *LogEntry {
	return &LogEntry{Term: term, Content: content}
}

// Size returns an estimate of the memory held by the entry, in bytes.
func (e *LogEntry) Size() int64 {
	const overhead = 16
	if e.Content == nil {
		return overhead
	}
	return overhead + e.Content.Size()
}

func (e *LogEntry) String() string {
	return fmt.Sprintf("{term=%d content=%v}", e.Term, e.Content)
}

// LogPosition is an index in the log with an optional physical hint for the
// storage layer. ByteOffset is never used for safety decisions.
type LogPosition struct {
	Index      int64
	ByteOffset int64
}

func (p LogPosition) String() string {
	return fmt.Sprintf("LogPosition{index=%d, byteOffset=%d}", p.Index, p.ByteOffset)
}
