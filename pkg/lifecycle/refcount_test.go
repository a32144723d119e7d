package lifecycle_test

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/influxdata/coreraft/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure a counter with no references can be disposed and refuses new references afterwards.
func TestReferenceCounter_Dispose(t *testing.T) {
	var r lifecycle.ReferenceCounter
	require.True(t, r.TryDispose())
	require.True(t, r.Disposed())
	require.False(t, r.Increase())

	// Disposal is idempotent.
	require.True(t, r.TryDispose())
	require.Equal(t, int32(-1), r.Get())
}

// Ensure a counter with live references cannot be disposed.
func TestReferenceCounter_DisposeWithReferences(t *testing.T) {
	var r lifecycle.ReferenceCounter
	require.True(t, r.Increase())
	require.True(t, r.Increase())
	require.False(t, r.TryDispose())

	r.Decrease()
	require.False(t, r.TryDispose())
	r.Decrease()
	require.True(t, r.TryDispose())
}

// Ensure releasing more references than were taken panics.
func TestReferenceCounter_DecreaseBelowZero(t *testing.T) {
	var r lifecycle.ReferenceCounter
	assert.Panics(t, func() { r.Decrease() })

	require.True(t, r.TryDispose())
	assert.Panics(t, func() { r.Decrease() })
}

// Ensure randomized concurrent use never drives the count negative and
// disposal is observed by at most one disposer while references are live.
func TestReferenceCounter_Concurrent(t *testing.T) {
	for round := 0; round < 50; round++ {
		var (
			r         lifecycle.ReferenceCounter
			wg        sync.WaitGroup
			disposals atomic.Int32
			inUse     atomic.Int32
		)

		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(seed int64) {
				defer wg.Done()
				rnd := rand.New(rand.NewSource(seed))
				for i := 0; i < 500; i++ {
					switch rnd.Intn(3) {
					case 0, 1:
						if !r.Increase() {
							continue
						}
						inUse.Add(1)
						if r.Disposed() {
							t.Error("counter disposed while a reference is held")
						}
						inUse.Add(-1)
						r.Decrease()
					case 2:
						if r.Get() != -1 && r.TryDispose() {
							disposals.Add(1)
						}
					}
					if n := r.Get(); n < -1 {
						t.Errorf("illegal count: %d", n)
					}
				}
			}(int64(round*100 + g))
		}
		wg.Wait()

		require.LessOrEqual(t, disposals.Load(), int32(1))
		require.Equal(t, int32(0), inUse.Load())
		require.True(t, r.TryDispose())
	}
}
