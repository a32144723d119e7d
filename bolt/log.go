package bolt

import (
	"encoding/binary"
	"sync"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/marshal"
	bolt "go.etcd.io/bbolt"
)

var (
	prevIndexKey = []byte("prev-index")
	prevTermKey  = []byte("prev-term")
)

// LogStore is a coreraft.RaftLog kept in the entries bucket, one key per
// index. The bounds of the log are cached in memory and written through.
type LogStore struct {
	client *Client

	mu          sync.RWMutex
	prevIndex   int64
	prevTerm    int64
	appendIndex int64
	lastTerm    int64
}

var _ coreraft.RaftLog = (*LogStore)(nil)

// NewLogStore loads the bounds of the log held by an open client.
func NewLogStore(c *Client) (*LogStore, error) {
	s := &LogStore{client: c, prevIndex: -1, prevTerm: -1, lastTerm: -1}
	err := c.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if v := meta.Get(prevIndexKey); v != nil {
			s.prevIndex = decodeInt(v)
			s.prevTerm = decodeInt(meta.Get(prevTermKey))
		}
		s.appendIndex, s.lastTerm = s.prevIndex, s.prevTerm

		k, v := tx.Bucket(entriesBucket).Cursor().Last()
		if k == nil {
			return nil
		}
		e, err := marshal.UnmarshalEntry(v)
		if err != nil {
			return err
		}
		s.appendIndex, s.lastTerm = decodeInt(k), e.Term
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LogStore) AppendIndex() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appendIndex
}

func (s *LogStore) PrevIndex() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prevIndex
}

func (s *LogStore) ReadEntryTerm(index int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch {
	case index == s.prevIndex:
		return s.prevTerm, nil
	case index == s.appendIndex:
		return s.lastTerm, nil
	case index < s.prevIndex || index > s.appendIndex:
		return -1, nil
	}

	e, err := s.readEntry(index)
	if err != nil {
		return -1, err
	}
	return e.Term, nil
}

func (s *LogStore) ReadEntry(index int64) (*coreraft.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index <= s.prevIndex || index > s.appendIndex {
		return nil, &errors.Error{
			Code: errors.ENotFound,
			Op:   "bolt.ReadEntry",
			Msg:  "no entry at index",
			Err:  errors.Errorf(errors.ENotFound, "index %d outside (%d, %d]", index, s.prevIndex, s.appendIndex),
		}
	}
	return s.readEntry(index)
}

func (s *LogStore) readEntry(index int64) (*coreraft.LogEntry, error) {
	var e *coreraft.LogEntry
	err := s.client.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(entriesBucket).Get(encodeInt(index))
		if v == nil {
			return &errors.Error{Code: errors.EInternal, Op: "bolt.ReadEntry", Msg: "entry missing from store"}
		}
		var err error
		e, err = marshal.UnmarshalEntry(v)
		return err
	})
	return e, err
}

func (s *LogStore) Append(entries ...*coreraft.LogEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	last := s.lastTerm
	for _, e := range entries {
		if e.Term < last {
			return s.appendIndex, errors.Errorf(errors.EInvalid, "entry term %d is below last term %d", e.Term, last)
		}
		last = e.Term
	}

	err := s.client.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		for i, e := range entries {
			v, err := marshal.MarshalEntry(e)
			if err != nil {
				return err
			}
			if err := b.Put(encodeInt(s.appendIndex+1+int64(i)), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.appendIndex, err
	}

	s.appendIndex += int64(len(entries))
	s.lastTerm = last
	return s.appendIndex, nil
}

func (s *LogStore) Truncate(fromIndex int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fromIndex <= s.prevIndex {
		return errors.Errorf(errors.EInvalid, "cannot truncate at %d, at or before prev index %d", fromIndex, s.prevIndex)
	} else if fromIndex > s.appendIndex {
		return nil
	}

	lastTerm := s.prevTerm
	err := s.client.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.Seek(encodeInt(fromIndex)); k != nil; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		if err := deleteKeys(b, keys); err != nil {
			return err
		}
		if k, v := b.Cursor().Last(); k != nil {
			e, err := marshal.UnmarshalEntry(v)
			if err != nil {
				return err
			}
			lastTerm = e.Term
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.appendIndex = fromIndex - 1
	s.lastTerm = lastTerm
	return nil
}

func (s *LogStore) Prune(safeIndex int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if safeIndex <= s.prevIndex {
		return s.prevIndex, nil
	}
	if safeIndex > s.appendIndex {
		safeIndex = s.appendIndex
	}
	if safeIndex <= s.prevIndex {
		return s.prevIndex, nil
	}

	var prevTerm int64
	err := s.client.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		e, err := marshal.UnmarshalEntry(b.Get(encodeInt(safeIndex)))
		if err != nil {
			return err
		}
		prevTerm = e.Term

		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && decodeInt(k) <= safeIndex; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		if err := deleteKeys(b, keys); err != nil {
			return err
		}
		return putBounds(tx, safeIndex, prevTerm)
	})
	if err != nil {
		return s.prevIndex, err
	}

	s.prevIndex, s.prevTerm = safeIndex, prevTerm
	return s.prevIndex, nil
}

func (s *LogStore) Skip(index, term int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index <= s.appendIndex {
		return s.appendIndex, nil
	}

	err := s.client.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(entriesBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucket(entriesBucket); err != nil {
			return err
		}
		return putBounds(tx, index, term)
	})
	if err != nil {
		return s.appendIndex, err
	}

	s.prevIndex, s.prevTerm = index, term
	s.appendIndex, s.lastTerm = index, term
	return s.appendIndex, nil
}

// deleteKeys removes keys collected from a cursor. Deleting while iterating
// a bbolt cursor skips keys.
func deleteKeys(b *bolt.Bucket, keys [][]byte) error {
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func putBounds(tx *bolt.Tx, index, term int64) error {
	meta := tx.Bucket(metaBucket)
	if err := meta.Put(prevIndexKey, encodeInt(index)); err != nil {
		return err
	}
	return meta.Put(prevTermKey, encodeInt(term))
}

// encodeInt encodes a non-negative index so that keys sort in index order.
func encodeInt(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func decodeInt(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}
