package bolt

import (
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/raft"
	bolt "go.etcd.io/bbolt"
)

var termStateKey = []byte("term-state")

// StateStore persists the raft term state in the meta bucket.
type StateStore struct {
	client *Client
}

var _ raft.StateStorage = (*StateStore)(nil)

// NewStateStore returns a StateStore backed by an open client.
func NewStateStore(c *Client) *StateStore {
	return &StateStore{client: c}
}

// ReadTermState returns the last state written, or the zero state.
func (s *StateStore) ReadTermState() (raft.TermState, error) {
	var st raft.TermState
	err := s.client.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(termStateKey)
		if v == nil {
			return nil
		}
		if len(v) != 24 {
			return &errors.Error{Code: errors.EInternal, Op: "bolt.ReadTermState", Msg: "corrupt term state"}
		}
		st.Term = decodeInt(v[:8])
		copy(st.VotedFor[:], v[8:])
		return nil
	})
	return st, err
}

// WriteTermState replaces the stored state. bbolt syncs on commit.
func (s *StateStore) WriteTermState(st raft.TermState) error {
	return s.client.db.Update(func(tx *bolt.Tx) error {
		v := append(encodeInt(st.Term), st.VotedFor[:]...)
		return tx.Bucket(metaBucket).Put(termStateKey, v)
	})
}
