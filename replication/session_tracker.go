package replication

import (
	"sync"

	"github.com/google/uuid"
	"github.com/influxdata/coreraft"
)

// SessionState is the applied position of every local session, by owner.
// It is part of every snapshot.
type SessionState struct {
	Owners map[coreraft.MemberID]OwnerState
	// LogIndex is the index of the last operation applied, or -1.
	LogIndex int64
}

// OwnerState tracks the current global session of one member.
type OwnerState struct {
	Session uuid.UUID
	// LastSequence maps a local session id to its last applied sequence number.
	LastSequence map[int64]int64
}

func (s SessionState) clone() SessionState {
	c := SessionState{Owners: make(map[coreraft.MemberID]OwnerState, len(s.Owners)), LogIndex: s.LogIndex}
	for owner, st := range s.Owners {
		seqs := make(map[int64]int64, len(st.LastSequence))
		for id, seq := range st.LastSequence {
			seqs[id] = seq
		}
		c.Owners[owner] = OwnerState{Session: st.Session, LastSequence: seqs}
	}
	return c
}

// SessionTracker decides whether a committed operation is the next one of
// its session. An operation that is not is a resubmission or arrived out
// of order, and must not be applied.
type SessionTracker struct {
	mu    sync.Mutex
	state SessionState
}

// NewSessionTracker returns a tracker that has seen no operations.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{state: SessionState{Owners: make(map[coreraft.MemberID]OwnerState), LogIndex: -1}}
}

// Validate returns true if id follows the last applied operation of its
// local session. The first operation of a session must have sequence 0.
func (t *SessionTracker) Validate(session GlobalSession, id LocalOperationID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.state.Owners[session.Owner]
	if !ok || st.Session != session.ID {
		return id.SequenceNumber == 0
	}
	last, ok := st.LastSequence[id.LocalSessionID]
	if !ok {
		return id.SequenceNumber == 0
	}
	return id.SequenceNumber == last+1
}

// Update records id as applied at logIndex. A new global session of an
// owner replaces everything known about its previous one.
func (t *SessionTracker) Update(session GlobalSession, id LocalOperationID, logIndex int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.state.Owners[session.Owner]
	if !ok || st.Session != session.ID {
		st = OwnerState{Session: session.ID, LastSequence: make(map[int64]int64)}
	}
	st.LastSequence[id.LocalSessionID] = id.SequenceNumber
	t.state.Owners[session.Owner] = st
	if logIndex > t.state.LogIndex {
		t.state.LogIndex = logIndex
	}
}

// LastLogIndex returns the index of the last operation applied.
func (t *SessionTracker) LastLogIndex() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.LogIndex
}

// Snapshot returns a copy of the tracked state.
func (t *SessionTracker) Snapshot() SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

// Install replaces the tracked state with s.
func (t *SessionTracker) Install(s SessionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.Owners == nil {
		s.Owners = make(map[coreraft.MemberID]OwnerState)
	}
	t.state = s.clone()
}
