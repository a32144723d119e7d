package raft

import (
	"sync"

	"github.com/influxdata/coreraft"
)

// TermState is the part of a member's state that must survive restarts.
type TermState struct {
	Term     int64
	VotedFor coreraft.MemberID
}

// StateStorage persists the term state. WriteTermState must be durable
// before it returns, as a vote cast and then forgotten breaks elections.
type StateStorage interface {
	ReadTermState() (TermState, error)
	WriteTermState(s TermState) error
}

// MemoryStateStorage keeps the term state in memory.
type MemoryStateStorage struct {
	mu    sync.Mutex
	state TermState
	// Writes counts calls to WriteTermState.
	Writes int
}

// ReadTermState returns the last state written.
func (s *MemoryStateStorage) ReadTermState() (TermState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

// WriteTermState replaces the stored state.
func (s *MemoryStateStorage) WriteTermState(state TermState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.Writes++
	return nil
}
