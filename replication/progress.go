package replication

import (
	"sync"
)

// Progress follows one operation from submission to its result.
type Progress struct {
	replicatedOnce sync.Once
	replicated     chan struct{}

	doneOnce sync.Once
	done     chan struct{}
	result   interface{}
	err      error
}

func newProgress() *Progress {
	return &Progress{replicated: make(chan struct{}), done: make(chan struct{})}
}

// Replicated is closed once the operation was seen committed.
func (p *Progress) Replicated() <-chan struct{} { return p.replicated }

// Done is closed once the operation has a result.
func (p *Progress) Done() <-chan struct{} { return p.done }

// Result returns the result of applying the operation. It must only be
// called after Done was closed.
func (p *Progress) Result() (interface{}, error) { return p.result, p.err }

func (p *Progress) setReplicated() {
	p.replicatedOnce.Do(func() { close(p.replicated) })
}

func (p *Progress) complete(result interface{}, err error) {
	p.doneOnce.Do(func() {
		p.result, p.err = result, err
		p.setReplicated()
		close(p.done)
	})
}

// ProgressTracker holds the progress of the operations this member
// submitted. Operations of other members are ignored.
type ProgressTracker struct {
	mu       sync.Mutex
	progress map[key]*Progress
}

// NewProgressTracker returns an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{progress: make(map[key]*Progress)}
}

// Start begins tracking op.
func (t *ProgressTracker) Start(op *DistributedOperation) *Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := newProgress()
	t.progress[op.key()] = p
	return p
}

// TrackReplication marks op as committed.
func (t *ProgressTracker) TrackReplication(op *DistributedOperation) {
	t.mu.Lock()
	p := t.progress[op.key()]
	t.mu.Unlock()
	if p != nil {
		p.setReplicated()
	}
}

// TrackResult completes op with the result of applying it.
func (t *ProgressTracker) TrackResult(op *DistributedOperation, result interface{}, err error) {
	t.mu.Lock()
	p := t.progress[op.key()]
	delete(t.progress, op.key())
	t.mu.Unlock()
	if p != nil {
		p.complete(result, err)
	}
}

// Abort stops tracking op.
func (t *ProgressTracker) Abort(op *DistributedOperation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.progress, op.key())
}

// InProgressCount returns the number of tracked operations.
func (t *ProgressTracker) InProgressCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.progress)
}
