package cluster

import (
	"bytes"
	"io"
	"sync"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/apply"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/marshal"
)

var _ apply.CommittedSink = (*Store)(nil)

// Record is one value applied to a Store.
type Record struct {
	Index int64
	Value []byte
}

// Store is an in-memory state machine that keeps every applied value in
// order. The result of applying a value is its log index.
type Store struct {
	mu      sync.RWMutex
	records []Record
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Apply appends content to the store. Only byte content is accepted.
func (s *Store) Apply(index int64, content coreraft.ReplicatedContent) (interface{}, error) {
	b, ok := content.(coreraft.ByteContent)
	if !ok {
		return nil, errors.Errorf(errors.EInvalid, "unsupported content %s", content.ContentType())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{Index: index, Value: append([]byte(nil), b...)})
	return index, nil
}

// Snapshot encodes every record as a framed entry whose term field holds
// the index the value was applied at.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var buf bytes.Buffer
	enc := marshal.NewEntryEncoder(&buf)
	for _, r := range s.records {
		if err := enc.Encode(coreraft.NewLogEntry(r.Index, coreraft.ByteContent(r.Value))); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Install replaces the records with those of a snapshot.
func (s *Store) Install(data []byte) error {
	var records []Record
	dec := marshal.NewEntryDecoder(bytes.NewReader(data))
	for {
		e, err := dec.Decode()
		if err == io.EOF {
			break
		} else if err != nil {
			return &errors.Error{Code: errors.EInvalid, Op: "cluster.Store.Install", Msg: "corrupt snapshot", Err: err}
		}
		b, ok := e.Content.(coreraft.ByteContent)
		if !ok {
			return errors.Errorf(errors.EInvalid, "unexpected snapshot content %s", e.Content.ContentType())
		}
		records = append(records, Record{Index: e.Term, Value: b})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	return nil
}

// Records returns a copy of the applied records.
func (s *Store) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...)
}

// Values returns the applied values in order.
func (s *Store) Values() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make([][]byte, len(s.records))
	for i, r := range s.records {
		values[i] = r.Value
	}
	return values
}

// Len returns the number of applied values.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
