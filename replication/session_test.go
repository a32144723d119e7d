package replication_test

import (
	"testing"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/replication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSession_NextOperationID(t *testing.T) {
	s := replication.NewLocalSession(3)
	assert.Equal(t, replication.LocalOperationID{LocalSessionID: 3, SequenceNumber: 0}, s.NextOperationID())
	assert.Equal(t, replication.LocalOperationID{LocalSessionID: 3, SequenceNumber: 1}, s.NextOperationID())
	assert.Equal(t, "3/2", s.NextOperationID().String())
}

// Ensure released sessions are reused and continue their sequence.
func TestLocalSessionPool(t *testing.T) {
	owner := coreraft.NewMemberID()
	p := replication.NewLocalSessionPool(owner)
	assert.Equal(t, owner, p.GlobalSession().Owner)

	a := p.Acquire()
	b := p.Acquire()
	require.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 2, p.OpenSessionCount())

	a.NextOperationID()
	p.Release(a)
	assert.Equal(t, 1, p.OpenSessionCount())

	c := p.Acquire()
	assert.Equal(t, a.ID(), c.ID())
	assert.Equal(t, int64(1), c.NextOperationID().SequenceNumber)

	// A discarded session is never handed out again.
	p.Discard(b)
	d := p.Acquire()
	assert.NotEqual(t, b.ID(), d.ID())
}

// Ensure every member incarnation gets its own global session.
func TestNewGlobalSession(t *testing.T) {
	owner := coreraft.NewMemberID()
	assert.NotEqual(t, replication.NewGlobalSession(owner), replication.NewGlobalSession(owner))
}

func TestDistributedOperation_Size(t *testing.T) {
	op := &replication.DistributedOperation{Content: coreraft.ByteContent("abcd")}
	assert.Equal(t, int64(52), op.Size())
	assert.Equal(t, coreraft.ContentTypeDistributedOperation, op.ContentType())
}
