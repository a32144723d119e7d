package schedule

import (
	"sync"
)

// Group names the pool of work a job belongs to.
type Group string

const (
	// GroupRaftTimer runs election and heartbeat timeouts.
	GroupRaftTimer Group = "RaftTimer"
	// GroupDownload runs snapshot downloads.
	GroupDownload Group = "Download"
)

// JobScheduler runs jobs on behalf of timers and background services.
type JobScheduler interface {
	Schedule(group Group, job func())
}

// GoroutineScheduler runs every job on its own goroutine.
type GoroutineScheduler struct {
	wg sync.WaitGroup
}

// NewGoroutineScheduler returns a scheduler backed by goroutines.
func NewGoroutineScheduler() *GoroutineScheduler {
	return &GoroutineScheduler{}
}

// Schedule runs job in a new goroutine.
func (s *GoroutineScheduler) Schedule(_ Group, job func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		job()
	}()
}

// Wait blocks until every scheduled job has returned.
func (s *GoroutineScheduler) Wait() {
	s.wg.Wait()
}

// SyncScheduler runs every job on the calling goroutine. Tests use it to
// make timer invocations deterministic.
type SyncScheduler struct{}

// Schedule runs job immediately.
func (SyncScheduler) Schedule(_ Group, job func()) {
	job()
}

// QueueScheduler holds jobs until RunPending is called. Timers fire from
// inside the callbacks of a clock, where a job must not call back into the
// clock; a mock clock that is advanced by hand runs timer jobs with it once
// Add has returned.
type QueueScheduler struct {
	mu   sync.Mutex
	jobs []func()
}

// NewQueueScheduler returns an empty queue scheduler.
func NewQueueScheduler() *QueueScheduler {
	return &QueueScheduler{}
}

// Schedule queues job.
func (s *QueueScheduler) Schedule(_ Group, job func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// RunPending runs the queued jobs in order on the calling goroutine,
// including jobs queued while it runs, and returns how many ran.
func (s *QueueScheduler) RunPending() int {
	var n int
	for {
		s.mu.Lock()
		jobs := s.jobs
		s.jobs = nil
		s.mu.Unlock()

		if len(jobs) == 0 {
			return n
		}
		for _, job := range jobs {
			job()
			n++
		}
	}
}

// Len returns the number of queued jobs.
func (s *QueueScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
