package replication_test

import (
	"errors"
	"testing"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/replication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestProgressTracker(t *testing.T) {
	tr := replication.NewProgressTracker()
	op := &replication.DistributedOperation{
		Content:       coreraft.ByteContent("a"),
		GlobalSession: replication.NewGlobalSession(coreraft.NewMemberID()),
		OperationID:   opID(0, 0),
	}

	p := tr.Start(op)
	assert.Equal(t, 1, tr.InProgressCount())
	assert.False(t, isClosed(p.Replicated()))

	tr.TrackReplication(op)
	assert.True(t, isClosed(p.Replicated()))
	assert.False(t, isClosed(p.Done()))

	tr.TrackResult(op, "ok", nil)
	require.True(t, isClosed(p.Done()))
	result, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 0, tr.InProgressCount())

	// Later results of the same operation are ignored.
	tr.TrackResult(op, "again", errors.New("boom"))
	result, _ = p.Result()
	assert.Equal(t, "ok", result)
}

// Ensure a result implies replication.
func TestProgressTracker_ResultWithoutReplication(t *testing.T) {
	tr := replication.NewProgressTracker()
	op := &replication.DistributedOperation{OperationID: opID(0, 0)}
	p := tr.Start(op)
	tr.TrackResult(op, nil, errors.New("failed"))
	assert.True(t, isClosed(p.Replicated()))
	_, err := p.Result()
	assert.EqualError(t, err, "failed")
}

func TestProgressTracker_Abort(t *testing.T) {
	tr := replication.NewProgressTracker()
	op := &replication.DistributedOperation{OperationID: opID(0, 0)}
	p := tr.Start(op)
	tr.Abort(op)
	assert.Equal(t, 0, tr.InProgressCount())
	tr.TrackReplication(op)
	assert.False(t, isClosed(p.Replicated()))
}
