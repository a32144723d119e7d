// Package cache holds recently appended log entries in memory so the
// replication path rarely has to read them back from durable storage.
package cache

import (
	"sync"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/pkg/lifecycle"
)

// InFlightCache caches log entries by index. Implementations are safe for
// concurrent use. An entry is never evicted to honor a size limit while a
// reader holds it through Acquire.
type InFlightCache interface {
	// Put caches entry at index.
	Put(index int64, entry *coreraft.LogEntry)

	// Get returns the entry at index, or nil on a miss.
	Get(index int64) *coreraft.LogEntry

	// Acquire returns the entry at index and pins it in the cache until
	// release is called. It returns false on a miss.
	Acquire(index int64) (entry *coreraft.LogEntry, release func(), ok bool)

	// Truncate drops every entry from fromIndex onwards.
	Truncate(fromIndex int64)

	// Prune drops entries up to and including upToIndex that are not pinned.
	Prune(upToIndex int64)

	// Clear drops every entry.
	Clear()

	TotalBytes() int64
	ElementCount() int
}

// slot is a cached entry and the readers pinning it.
type slot struct {
	entry *coreraft.LogEntry
	size  int64
	refs  lifecycle.ReferenceCounter
}

func newSlot(entry *coreraft.LogEntry) *slot {
	return &slot{entry: entry, size: entry.Size()}
}

// acquire pins the slot. The returned release function may be called more
// than once; only the first call has an effect.
func (s *slot) acquire() (func(), bool) {
	if !s.refs.Increase() {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(s.refs.Decrease) }, true
}
