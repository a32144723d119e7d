package catchup_test

import (
	"context"
	"testing"
	"time"

	"github.com/influxdata/coreraft/catchup"
	"github.com/influxdata/coreraft/raft/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type blockingDownloads struct {
	started chan struct{}
}

func (b *blockingDownloads) Download(ctx context.Context) error {
	b.started <- struct{}{}
	<-ctx.Done()
	return ctx.Err()
}

// Ensure only one download runs at a time and that it can be cancelled.
func TestDownloadService(t *testing.T) {
	downloads := &blockingDownloads{started: make(chan struct{}, 2)}
	s := catchup.NewDownloadService(zaptest.NewLogger(t), downloads, schedule.NewGoroutineScheduler())
	defer s.Close()

	h := s.ScheduleDownload(context.Background())
	<-downloads.started
	assert.True(t, s.InProgress())
	assert.Same(t, h, s.ScheduleDownload(context.Background()), "running download is reused")

	h.Cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Equal(t, context.Canceled, h.Wait(ctx))
	assert.False(t, s.InProgress())

	h2 := s.ScheduleDownload(context.Background())
	require.NotSame(t, h, h2)
	<-downloads.started
	require.NoError(t, s.Close())
	<-h2.Done()
	assert.Equal(t, context.Canceled, h2.Err())
}

type countingDownloads struct{ n int }

func (c *countingDownloads) Download(context.Context) error {
	c.n++
	return nil
}

// Ensure a synchronous scheduler finishes the download before returning.
func TestDownloadService_Sync(t *testing.T) {
	downloads := &countingDownloads{}
	s := catchup.NewDownloadService(zaptest.NewLogger(t), downloads, schedule.SyncScheduler{})

	h := s.ScheduleDownload(context.Background())
	select {
	case <-h.Done():
	default:
		t.Fatal("expected download to have finished")
	}
	require.NoError(t, h.Err())
	assert.False(t, s.InProgress())

	s.ScheduleDownload(context.Background())
	assert.Equal(t, 2, downloads.n)
	require.NoError(t, s.Close())
}
