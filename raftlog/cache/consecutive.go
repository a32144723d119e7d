package cache

import (
	"sync"

	"github.com/influxdata/coreraft"
)

// Consecutive caches a contiguous range of indices, bounded by entry count
// and total size. Putting an index that does not extend the range clears
// the cache first, so a hit never skips over an evicted entry.
type Consecutive struct {
	maxEntries int
	maxBytes   int64
	metrics    *Metrics

	mu    sync.RWMutex
	first int64 // index of slots[0]
	slots []*slot
	bytes int64
}

// NewConsecutive returns an empty consecutive cache.
func NewConsecutive(maxEntries int, maxBytes int64, m *Metrics) *Consecutive {
	return &Consecutive{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		metrics:    m,
	}
}

func (c *Consecutive) Put(index int64, entry *coreraft.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := c.first + int64(len(c.slots))
	switch {
	case len(c.slots) == 0:
		c.first = index
	case index >= c.first && index < end:
		// A rewrite of an index we hold: everything from it on is stale.
		c.truncate(index)
	case index != end:
		c.clear()
		c.first = index
	}

	s := newSlot(entry)
	c.slots = append(c.slots, s)
	c.bytes += s.size
	c.evict()
	c.metrics.set(c.bytes, len(c.slots))
}

// evict drops the oldest entries while over a limit, stopping at the first
// pinned entry. The newest entry is always kept.
func (c *Consecutive) evict() {
	for len(c.slots) > 1 && (len(c.slots) > c.maxEntries || c.bytes > c.maxBytes) {
		head := c.slots[0]
		if !head.refs.TryDispose() {
			return
		}
		c.slots[0] = nil
		c.slots = c.slots[1:]
		c.first++
		c.bytes -= head.size
		c.metrics.evictions.Inc()
	}
}

func (c *Consecutive) lookup(index int64) *slot {
	if i := index - c.first; len(c.slots) > 0 && i >= 0 && i < int64(len(c.slots)) {
		return c.slots[i]
	}
	return nil
}

func (c *Consecutive) Get(index int64) *coreraft.LogEntry {
	c.mu.RLock()
	s := c.lookup(index)
	c.mu.RUnlock()

	c.metrics.lookup(s != nil)
	if s == nil {
		return nil
	}
	return s.entry
}

func (c *Consecutive) Acquire(index int64) (*coreraft.LogEntry, func(), bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if s := c.lookup(index); s != nil {
		if release, ok := s.acquire(); ok {
			c.metrics.lookup(true)
			return s.entry, release, true
		}
	}
	c.metrics.lookup(false)
	return nil, nil, false
}

func (c *Consecutive) Truncate(fromIndex int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.truncate(fromIndex)
	c.metrics.set(c.bytes, len(c.slots))
}

func (c *Consecutive) truncate(fromIndex int64) {
	i := fromIndex - c.first
	if i < 0 {
		i = 0
	}
	for j := i; j < int64(len(c.slots)); j++ {
		c.bytes -= c.slots[j].size
		c.slots[j] = nil
	}
	if i < int64(len(c.slots)) {
		c.slots = c.slots[:i]
	}
}

func (c *Consecutive) Prune(upToIndex int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.slots) > 0 && c.first <= upToIndex {
		head := c.slots[0]
		if !head.refs.TryDispose() {
			break
		}
		c.slots[0] = nil
		c.slots = c.slots[1:]
		c.first++
		c.bytes -= head.size
	}
	c.metrics.set(c.bytes, len(c.slots))
}

func (c *Consecutive) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clear()
	c.metrics.set(c.bytes, len(c.slots))
}

// clear drops every slot. Readers that pinned an entry keep their copy; the
// entry is simply no longer served.
func (c *Consecutive) clear() {
	c.slots = nil
	c.bytes = 0
}

func (c *Consecutive) TotalBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytes
}

func (c *Consecutive) ElementCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}
