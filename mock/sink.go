package mock

import (
	"sync"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/apply"
)

var _ apply.CommittedSink = (*CommittedSink)(nil)

// AppliedEntry is a content applied to a CommittedSink.
type AppliedEntry struct {
	Index   int64
	Content coreraft.ReplicatedContent
}

// CommittedSink is a mock implementation of apply.CommittedSink. Unless
// overridden it records applied entries and returns their index as result.
type CommittedSink struct {
	mu        sync.Mutex
	applied   []AppliedEntry
	installed [][]byte

	ApplyFn    func(index int64, content coreraft.ReplicatedContent) (interface{}, error)
	SnapshotFn func() ([]byte, error)
	InstallFn  func(data []byte) error
}

func (s *CommittedSink) Apply(index int64, content coreraft.ReplicatedContent) (interface{}, error) {
	if s.ApplyFn != nil {
		return s.ApplyFn(index, content)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = append(s.applied, AppliedEntry{Index: index, Content: content})
	return index, nil
}

func (s *CommittedSink) Snapshot() ([]byte, error) {
	if s.SnapshotFn != nil {
		return s.SnapshotFn()
	}
	return []byte("snapshot"), nil
}

func (s *CommittedSink) Install(data []byte) error {
	if s.InstallFn != nil {
		return s.InstallFn(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applied = nil
	s.installed = append(s.installed, data)
	return nil
}

// Applied returns the entries applied so far.
func (s *CommittedSink) Applied() []AppliedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AppliedEntry(nil), s.applied...)
}

// Installed returns the snapshots installed so far.
func (s *CommittedSink) Installed() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.installed...)
}
