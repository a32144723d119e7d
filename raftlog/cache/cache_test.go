package cache_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/prom/promtest"
	"github.com/influxdata/coreraft/raftlog/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func entry(term int64, s string) *coreraft.LogEntry {
	return coreraft.NewLogEntry(term, coreraft.ByteContent(s))
}

func newCaches() map[string]cache.InFlightCache {
	return map[string]cache.InFlightCache{
		"consecutive": cache.NewConsecutive(100, 1<<20, cache.NewMetrics(nil)),
		"unbounded":   cache.NewUnbounded(cache.NewMetrics(nil)),
	}
}

func TestInFlightCache_PutGet(t *testing.T) {
	for name, c := range newCaches() {
		t.Run(name, func(t *testing.T) {
			for i := int64(0); i < 10; i++ {
				c.Put(i, entry(1, fmt.Sprint(i)))
			}
			require.Equal(t, 10, c.ElementCount())
			require.Equal(t, int64(10*(16+1)), c.TotalBytes())

			for i := int64(0); i < 10; i++ {
				require.Equal(t, entry(1, fmt.Sprint(i)), c.Get(i))
			}
			require.Nil(t, c.Get(10))
			require.Nil(t, c.Get(-1))
		})
	}
}

func TestInFlightCache_Truncate(t *testing.T) {
	for name, c := range newCaches() {
		t.Run(name, func(t *testing.T) {
			for i := int64(0); i < 10; i++ {
				c.Put(i, entry(1, "x"))
			}
			c.Truncate(6)
			require.Equal(t, 6, c.ElementCount())
			require.NotNil(t, c.Get(5))
			require.Nil(t, c.Get(6))

			// Entries of a new term replace the truncated ones.
			c.Put(6, entry(2, "y"))
			require.Equal(t, entry(2, "y"), c.Get(6))
		})
	}
}

func TestInFlightCache_Prune(t *testing.T) {
	for name, c := range newCaches() {
		t.Run(name, func(t *testing.T) {
			for i := int64(0); i < 10; i++ {
				c.Put(i, entry(1, "x"))
			}
			c.Prune(3)
			require.Equal(t, 6, c.ElementCount())
			require.Nil(t, c.Get(3))
			require.NotNil(t, c.Get(4))

			c.Clear()
			require.Zero(t, c.ElementCount())
			require.Zero(t, c.TotalBytes())
		})
	}
}

// Ensure pinned entries survive pruning until released.
func TestInFlightCache_AcquirePinsEntry(t *testing.T) {
	for name, c := range newCaches() {
		t.Run(name, func(t *testing.T) {
			for i := int64(0); i < 4; i++ {
				c.Put(i, entry(1, "x"))
			}
			e, release, ok := c.Acquire(0)
			require.True(t, ok)
			require.Equal(t, entry(1, "x"), e)

			c.Prune(1)
			require.NotNil(t, c.Get(0))

			release()
			release() // idempotent
			c.Prune(1)
			require.Nil(t, c.Get(0))
			require.Nil(t, c.Get(1))

			_, _, ok = c.Acquire(0)
			require.False(t, ok)
		})
	}
}

func TestVoid(t *testing.T) {
	c := cache.NewVoid(cache.NewMetrics(nil))
	c.Put(0, entry(1, "x"))
	require.Nil(t, c.Get(0))
	_, _, ok := c.Acquire(0)
	require.False(t, ok)
	require.Zero(t, c.ElementCount())
	require.Zero(t, c.TotalBytes())
}

// Ensure the consecutive cache evicts oldest first by count and by size.
func TestConsecutive_Evict(t *testing.T) {
	t.Run("count", func(t *testing.T) {
		c := cache.NewConsecutive(3, 1<<20, cache.NewMetrics(nil))
		for i := int64(0); i < 5; i++ {
			c.Put(i, entry(1, "x"))
		}
		require.Equal(t, 3, c.ElementCount())
		require.Nil(t, c.Get(1))
		require.NotNil(t, c.Get(2))
		require.NotNil(t, c.Get(4))
	})

	t.Run("bytes", func(t *testing.T) {
		// Every entry is 16 bytes of header plus 4 bytes of content.
		c := cache.NewConsecutive(100, 50, cache.NewMetrics(nil))
		for i := int64(0); i < 5; i++ {
			c.Put(i, entry(1, "abcd"))
		}
		require.Equal(t, 2, c.ElementCount())
		require.Equal(t, int64(40), c.TotalBytes())
	})

	t.Run("pinned", func(t *testing.T) {
		c := cache.NewConsecutive(2, 1<<20, cache.NewMetrics(nil))
		c.Put(0, entry(1, "x"))
		_, release, ok := c.Acquire(0)
		require.True(t, ok)

		c.Put(1, entry(1, "x"))
		c.Put(2, entry(1, "x"))
		require.Equal(t, 3, c.ElementCount(), "pinned head is not evicted")
		require.NotNil(t, c.Get(0))

		release()
		c.Put(3, entry(1, "x"))
		require.Equal(t, 2, c.ElementCount())
		require.Nil(t, c.Get(0))
	})
}

// Ensure a gap clears the consecutive cache and nothing in the gap is ever a hit.
func TestConsecutive_Gap(t *testing.T) {
	c := cache.NewConsecutive(100, 1<<20, cache.NewMetrics(nil))
	for i := int64(0); i < 5; i++ {
		c.Put(i, entry(1, "x"))
	}
	c.Put(7, entry(1, "y"))

	require.Equal(t, 1, c.ElementCount())
	for i := int64(0); i < 7; i++ {
		require.Nil(t, c.Get(i), "index %d", i)
	}
	require.Equal(t, entry(1, "y"), c.Get(7))

	// Going backwards is a gap too.
	c.Put(3, entry(1, "z"))
	require.Nil(t, c.Get(7))
	require.Equal(t, entry(1, "z"), c.Get(3))
}

// Ensure random operations never produce a hit that differs from what was
// last stored at that index, and a consecutive cache only serves a
// contiguous range.
func TestInFlightCache_RandomizedConsistency(t *testing.T) {
	for _, typ := range []cache.Type{cache.TypeConsecutive, cache.TypeUnbounded} {
		t.Run(string(typ), func(t *testing.T) {
			rnd := rand.New(rand.NewSource(42))
			cfg := cache.Config{Type: typ, MaxEntries: 16, MaxBytes: 400}
			c, err := cache.New(cfg, cache.NewMetrics(nil))
			require.NoError(t, err)

			model := map[int64]*coreraft.LogEntry{}
			next := int64(0)
			for op := 0; op < 5000; op++ {
				switch n := rnd.Intn(10); {
				case n < 6:
					index := next
					if rnd.Intn(10) == 0 {
						index += int64(rnd.Intn(5)) // occasional gap
					}
					e := entry(int64(op), fmt.Sprint(rnd.Intn(1000)))
					c.Put(index, e)
					model[index] = e
					next = index + 1
				case n < 8:
					from := next - int64(rnd.Intn(4))
					c.Truncate(from)
					for i := range model {
						if i >= from {
							delete(model, i)
						}
					}
					if from < next {
						next = from
					}
				case n < 9:
					c.Prune(next - int64(rnd.Intn(20)))
				default:
					c.Clear()
				}

				var hits []int64
				for i := next - 40; i <= next; i++ {
					if got := c.Get(i); got != nil {
						require.Same(t, model[i], got, "index %d", i)
						hits = append(hits, i)
					}
				}
				if typ == cache.TypeConsecutive {
					for k := 1; k < len(hits); k++ {
						require.Equal(t, hits[k-1]+1, hits[k], "consecutive cache served a gap")
					}
				}
			}
		})
	}
}

func TestConfig_Parse(t *testing.T) {
	c := cache.NewConfig()
	_, err := toml.Decode(`
type = "unbounded"
max-entries = 10
max-bytes = "1m"
`, &c)
	require.NoError(t, err)
	require.Equal(t, cache.TypeUnbounded, c.Type)
	require.Equal(t, 10, c.MaxEntries)
	require.EqualValues(t, 1<<20, c.MaxBytes)
	require.NoError(t, c.Validate())

	_, err = toml.Decode(`type = "lru"`, &c)
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	for typ, want := range map[cache.Type]interface{}{
		cache.TypeNone:        &cache.Void{},
		cache.TypeConsecutive: &cache.Consecutive{},
		cache.TypeUnbounded:   &cache.Unbounded{},
	} {
		cfg := cache.NewConfig()
		cfg.Type = typ
		c, err := cache.New(cfg, cache.NewMetrics(nil))
		require.NoError(t, err)
		require.IsType(t, want, c)
	}

	cfg := cache.NewConfig()
	cfg.MaxEntries = 0
	_, err := cache.New(cfg, cache.NewMetrics(nil))
	require.Error(t, err)
}

func TestMetrics(t *testing.T) {
	m := cache.NewMetrics(prometheus.Labels{"member": "a"})
	reg := prometheus.NewRegistry()
	reg.MustRegister(m.PrometheusCollectors()...)

	c := cache.NewConsecutive(2, 1<<20, m)
	for i := int64(0); i < 3; i++ {
		c.Put(i, entry(1, "x"))
	}
	c.Get(0)
	c.Get(2)

	mfs := promtest.MustGather(t, reg)
	labels := map[string]string{"member": "a"}
	require.Equal(t, 1.0, promtest.MustFindMetric(t, mfs, "raft_in_flight_cache_hits_total", labels).GetCounter().GetValue())
	require.Equal(t, 1.0, promtest.MustFindMetric(t, mfs, "raft_in_flight_cache_misses_total", labels).GetCounter().GetValue())
	require.Equal(t, 1.0, promtest.MustFindMetric(t, mfs, "raft_in_flight_cache_evictions_total", labels).GetCounter().GetValue())
	require.Equal(t, 2.0, promtest.MustFindMetric(t, mfs, "raft_in_flight_cache_elements", labels).GetGauge().GetValue())
}
