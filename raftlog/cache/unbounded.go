package cache

import (
	"sync"

	"github.com/google/btree"
	"github.com/influxdata/coreraft"
)

type item struct {
	index int64
	slot  *slot
}

func itemLess(a, b item) bool { return a.index < b.index }

// Unbounded caches every entry it is given, ordered by index, until it is
// truncated, pruned or cleared.
type Unbounded struct {
	metrics *Metrics

	mu    sync.RWMutex
	tree  *btree.BTreeG[item]
	bytes int64
}

// NewUnbounded returns an empty unbounded cache.
func NewUnbounded(m *Metrics) *Unbounded {
	return &Unbounded{
		metrics: m,
		tree:    btree.NewG(32, itemLess),
	}
}

func (c *Unbounded) Put(index int64, entry *coreraft.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := newSlot(entry)
	if old, ok := c.tree.ReplaceOrInsert(item{index: index, slot: s}); ok {
		c.bytes -= old.slot.size
	}
	c.bytes += s.size
	c.metrics.set(c.bytes, c.tree.Len())
}

func (c *Unbounded) Get(index int64) *coreraft.LogEntry {
	c.mu.RLock()
	it, ok := c.tree.Get(item{index: index})
	c.mu.RUnlock()

	c.metrics.lookup(ok)
	if !ok {
		return nil
	}
	return it.slot.entry
}

func (c *Unbounded) Acquire(index int64) (*coreraft.LogEntry, func(), bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if it, ok := c.tree.Get(item{index: index}); ok {
		if release, ok := it.slot.acquire(); ok {
			c.metrics.lookup(true)
			return it.slot.entry, release, true
		}
	}
	c.metrics.lookup(false)
	return nil, nil, false
}

func (c *Unbounded) Truncate(fromIndex int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var drop []item
	c.tree.AscendGreaterOrEqual(item{index: fromIndex}, func(it item) bool {
		drop = append(drop, it)
		return true
	})
	c.remove(drop)
}

func (c *Unbounded) Prune(upToIndex int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var drop []item
	c.tree.AscendLessThan(item{index: upToIndex + 1}, func(it item) bool {
		if it.slot.refs.TryDispose() {
			drop = append(drop, it)
		}
		return true
	})
	c.remove(drop)
}

func (c *Unbounded) remove(items []item) {
	for _, it := range items {
		c.tree.Delete(it)
		c.bytes -= it.slot.size
	}
	c.metrics.set(c.bytes, c.tree.Len())
}

func (c *Unbounded) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree.Clear(false)
	c.bytes = 0
	c.metrics.set(c.bytes, 0)
}

func (c *Unbounded) TotalBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bytes
}

func (c *Unbounded) ElementCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.Len()
}
