package bolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/bolt"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func NewTestClient(t *testing.T, path string) *bolt.Client {
	t.Helper()

	c := bolt.NewClient(zaptest.NewLogger(t))
	c.Path = path
	require.NoError(t, c.Open(context.Background()))
	return c
}

func entries(terms ...int64) []*coreraft.LogEntry {
	out := make([]*coreraft.LogEntry, len(terms))
	for i, term := range terms {
		out[i] = coreraft.NewLogEntry(term, coreraft.ByteContent{byte(i)})
	}
	return out
}

func requireTerm(t *testing.T, l coreraft.ReadableRaftLog, index, want int64) {
	t.Helper()
	term, err := l.ReadEntryTerm(index)
	require.NoError(t, err)
	require.Equal(t, want, term, "term at %d", index)
}

// Ensure an empty store behaves as an empty log.
func TestLogStore_Empty(t *testing.T) {
	c := NewTestClient(t, filepath.Join(t.TempDir(), "raft.db"))
	defer c.Close()

	l, err := bolt.NewLogStore(c)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), l.AppendIndex())
	assert.Equal(t, int64(-1), l.PrevIndex())
	requireTerm(t, l, -1, -1)
	requireTerm(t, l, 0, -1)

	_, err = l.ReadEntry(0)
	assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))
}

// Ensure appended entries survive a reopen.
func TestLogStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raft.db")

	c := NewTestClient(t, path)
	l, err := bolt.NewLogStore(c)
	require.NoError(t, err)
	idx, err := l.Append(entries(1, 1, 2, 3)...)
	require.NoError(t, err)
	require.Equal(t, int64(3), idx)
	_, err = l.Prune(1)
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c = NewTestClient(t, path)
	defer c.Close()
	l, err = bolt.NewLogStore(c)
	require.NoError(t, err)

	assert.Equal(t, int64(3), l.AppendIndex())
	assert.Equal(t, int64(1), l.PrevIndex())
	requireTerm(t, l, 1, 1)
	requireTerm(t, l, 2, 2)
	requireTerm(t, l, 3, 3)

	e, err := l.ReadEntry(2)
	require.NoError(t, err)
	assert.Equal(t, coreraft.NewLogEntry(2, coreraft.ByteContent{2}), e)

	_, err = l.ReadEntry(1)
	assert.Equal(t, errors.ENotFound, errors.ErrorCode(err))
}

// Ensure truncation removes the tail and restores the last term.
func TestLogStore_Truncate(t *testing.T) {
	c := NewTestClient(t, filepath.Join(t.TempDir(), "raft.db"))
	defer c.Close()

	l, err := bolt.NewLogStore(c)
	require.NoError(t, err)
	_, err = l.Append(entries(1, 1, 2, 2)...)
	require.NoError(t, err)

	require.NoError(t, l.Truncate(2))
	assert.Equal(t, int64(1), l.AppendIndex())
	requireTerm(t, l, 1, 1)
	requireTerm(t, l, 2, -1)

	idx, err := l.Append(entries(3)...)
	require.NoError(t, err)
	assert.Equal(t, int64(2), idx)
	requireTerm(t, l, 2, 3)

	require.NoError(t, l.Truncate(10))
	assert.Equal(t, int64(2), l.AppendIndex())

	err = l.Truncate(-1)
	assert.Equal(t, errors.EInvalid, errors.ErrorCode(err))

	_, err = l.Append(entries(1)...)
	assert.Equal(t, errors.EInvalid, errors.ErrorCode(err), "terms never go backwards")
}

// Ensure pruning retains the term of the last pruned entry.
func TestLogStore_Prune(t *testing.T) {
	c := NewTestClient(t, filepath.Join(t.TempDir(), "raft.db"))
	defer c.Close()

	l, err := bolt.NewLogStore(c)
	require.NoError(t, err)
	_, err = l.Append(entries(1, 2, 2, 3)...)
	require.NoError(t, err)

	prev, err := l.Prune(2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), prev)
	requireTerm(t, l, 2, 2)
	requireTerm(t, l, 1, -1)

	prev, err = l.Prune(1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), prev, "pruning backwards is a no-op")

	prev, err = l.Prune(10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), prev)
	assert.Equal(t, int64(3), l.AppendIndex())
	requireTerm(t, l, 3, 3)
}

// Ensure skipping replaces the log with an empty one at the new position.
func TestLogStore_Skip(t *testing.T) {
	c := NewTestClient(t, filepath.Join(t.TempDir(), "raft.db"))
	defer c.Close()

	l, err := bolt.NewLogStore(c)
	require.NoError(t, err)
	_, err = l.Append(entries(1, 1)...)
	require.NoError(t, err)

	idx, err := l.Skip(1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), idx, "skipping backwards is a no-op")

	idx, err = l.Skip(9, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(9), idx)
	assert.Equal(t, int64(9), l.PrevIndex())
	requireTerm(t, l, 9, 4)
	requireTerm(t, l, 0, -1)

	idx, err = l.Append(entries(4)...)
	require.NoError(t, err)
	assert.Equal(t, int64(10), idx)
}

// Ensure the term state round trips through the store.
func TestStateStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raft.db")
	c := NewTestClient(t, path)

	s := bolt.NewStateStore(c)
	st, err := s.ReadTermState()
	require.NoError(t, err)
	assert.Equal(t, raft.TermState{}, st)

	want := raft.TermState{Term: 7, VotedFor: coreraft.NewMemberID()}
	require.NoError(t, s.WriteTermState(want))
	require.NoError(t, c.Close())

	c = NewTestClient(t, path)
	defer c.Close()
	st, err = bolt.NewStateStore(c).ReadTermState()
	require.NoError(t, err)
	assert.Equal(t, want, st)
}
