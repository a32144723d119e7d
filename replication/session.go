// Package replication submits content to the leader and tracks it until it
// has been committed and applied, deduplicating resubmissions.
package replication

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/influxdata/coreraft"
)

// LocalOperationID identifies one operation within a local session.
type LocalOperationID struct {
	LocalSessionID int64
	SequenceNumber int64
}

func (id LocalOperationID) String() string {
	return fmt.Sprintf("%d/%d", id.LocalSessionID, id.SequenceNumber)
}

// LocalSession hands out operation ids with increasing sequence numbers. A
// session is used by one client at a time.
type LocalSession struct {
	id   int64
	next int64
}

// NewLocalSession returns a session whose first operation has sequence number 0.
func NewLocalSession(id int64) *LocalSession {
	return &LocalSession{id: id}
}

// ID returns the local session id.
func (s *LocalSession) ID() int64 { return s.id }

// NextOperationID returns the id of the next operation of the session.
func (s *LocalSession) NextOperationID() LocalOperationID {
	id := LocalOperationID{LocalSessionID: s.id, SequenceNumber: s.next}
	s.next++
	return id
}

// GlobalSession identifies the session pool of one member incarnation. A
// restarted member starts a new global session.
type GlobalSession struct {
	ID    uuid.UUID
	Owner coreraft.MemberID
}

// NewGlobalSession returns a fresh global session owned by owner.
func NewGlobalSession(owner coreraft.MemberID) GlobalSession {
	return GlobalSession{ID: uuid.New(), Owner: owner}
}

func (s GlobalSession) String() string {
	return fmt.Sprintf("GlobalSession{id=%s owner=%s}", s.ID, s.Owner)
}

// LocalSessionPool recycles local sessions so that sequence numbers of a
// released session continue where they left off.
type LocalSessionPool struct {
	global GlobalSession

	mu     sync.Mutex
	nextID int64
	free   []*LocalSession
	open   int
}

// NewLocalSessionPool returns a pool under a new global session of owner.
func NewLocalSessionPool(owner coreraft.MemberID) *LocalSessionPool {
	return &LocalSessionPool{global: NewGlobalSession(owner)}
}

// GlobalSession returns the global session of the pool.
func (p *LocalSessionPool) GlobalSession() GlobalSession { return p.global }

// Acquire returns a session that is not in use.
func (p *LocalSessionPool) Acquire() *LocalSession {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.open++
	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free = p.free[:n-1]
		return s
	}
	s := NewLocalSession(p.nextID)
	p.nextID++
	return s
}

// Release returns s to the pool.
func (p *LocalSessionPool) Release(s *LocalSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open--
	p.free = append(p.free, s)
}

// Discard forgets s, which may have operations in flight.
func (p *LocalSessionPool) Discard(s *LocalSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open--
}

// OpenSessionCount returns the number of acquired sessions.
func (p *LocalSessionPool) OpenSessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}
