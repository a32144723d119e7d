package lifecycle

import (
	"fmt"
	"sync/atomic"
)

// disposed is the sentinel count of a disposed ReferenceCounter.
const disposed int32 = -1

// ReferenceCounter guards a resource shared by concurrent borrowers and a
// single, possibly concurrent, disposer. It never blocks: every operation
// is a compare-and-swap loop, so it can sit on hot read paths.
//
// The zero value is a live counter with no references.
type ReferenceCounter struct {
	count atomic.Int32
}

// Increase takes a reference. It returns false once the counter has been
// disposed, in which case the resource must not be used.
func (r *ReferenceCounter) Increase() bool {
	for {
		pre := r.count.Load()
		if pre == disposed {
			return false
		} else if r.count.CompareAndSwap(pre, pre+1) {
			return true
		}
	}
}

// Decrease releases a reference. Releasing more references than were taken
// is a lifecycle bug and panics.
func (r *ReferenceCounter) Decrease() {
	for {
		pre := r.count.Load()
		if pre <= 0 {
			panic(fmt.Sprintf("lifecycle: illegal reference count: %d", pre))
		} else if r.count.CompareAndSwap(pre, pre-1) {
			return
		}
	}
}

// TryDispose idempotently tries to dispose the counter. It succeeds only
// when no references are held and returns true if the counter was or is
// now disposed.
func (r *ReferenceCounter) TryDispose() bool {
	return r.count.Load() == disposed || r.count.CompareAndSwap(0, disposed)
}

// Disposed returns true if the counter has been disposed.
func (r *ReferenceCounter) Disposed() bool {
	return r.count.Load() == disposed
}

// Get returns the current number of references, or -1 once disposed.
func (r *ReferenceCounter) Get() int32 {
	return r.count.Load()
}
