package catchup

import (
	"context"
	"sync"

	"github.com/influxdata/coreraft/raft/schedule"
	"go.uber.org/zap"
)

// Downloads performs one complete download.
type Downloads interface {
	Download(ctx context.Context) error
}

// JobHandle follows a scheduled download.
type JobHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the download finished.
func (h *JobHandle) Done() <-chan struct{} { return h.done }

// Err returns the result of the download. It must only be called after
// Done was closed.
func (h *JobHandle) Err() error { return h.err }

// Cancel stops the download at its next resumption point.
func (h *JobHandle) Cancel() { h.cancel() }

// Wait blocks until the download finished or ctx is done.
func (h *JobHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DownloadService runs at most one download at a time on the download
// group of its scheduler.
type DownloadService struct {
	log       *zap.Logger
	downloads Downloads
	scheduler schedule.JobScheduler

	mu      sync.Mutex
	current *JobHandle
	wg      sync.WaitGroup
}

// NewDownloadService returns a service running downloads.
func NewDownloadService(log *zap.Logger, downloads Downloads, scheduler schedule.JobScheduler) *DownloadService {
	return &DownloadService{log: log, downloads: downloads, scheduler: scheduler}
}

// ScheduleDownload starts a download, or returns the running one. With a
// synchronous scheduler the download has finished when this returns.
func (s *DownloadService) ScheduleDownload(ctx context.Context) *JobHandle {
	s.mu.Lock()
	if s.current != nil {
		select {
		case <-s.current.done:
		default:
			h := s.current
			s.mu.Unlock()
			return h
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &JobHandle{cancel: cancel, done: make(chan struct{})}
	s.log.Info("Snapshot download scheduled")
	s.current = h
	s.wg.Add(1)
	s.mu.Unlock()

	s.scheduler.Schedule(schedule.GroupDownload, func() {
		defer s.wg.Done()
		defer cancel()
		h.err = s.downloads.Download(ctx)
		close(h.done)
	})
	return h
}

// InProgress returns true while a download runs.
func (s *DownloadService) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false
	}
	select {
	case <-s.current.done:
		return false
	default:
		return true
	}
}

// Close cancels a running download and waits for it to stop.
func (s *DownloadService) Close() error {
	s.mu.Lock()
	if s.current != nil {
		s.current.Cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}
