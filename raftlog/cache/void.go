package cache

import (
	"github.com/influxdata/coreraft"
)

// Void caches nothing.
type Void struct {
	metrics *Metrics
}

// NewVoid returns a cache that always misses.
func NewVoid(m *Metrics) *Void { return &Void{metrics: m} }

func (c *Void) Put(int64, *coreraft.LogEntry) {}

func (c *Void) Get(int64) *coreraft.LogEntry {
	c.metrics.lookup(false)
	return nil
}

func (c *Void) Acquire(int64) (*coreraft.LogEntry, func(), bool) {
	c.metrics.lookup(false)
	return nil, nil, false
}

func (c *Void) Truncate(int64)    {}
func (c *Void) Prune(int64)       {}
func (c *Void) Clear()            {}
func (c *Void) TotalBytes() int64 { return 0 }
func (c *Void) ElementCount() int { return 0 }
