package coreraft

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// MemberID uniquely identifies a member of a cluster. The zero value means
// "no member" and is used for an unknown leader or an absent vote.
type MemberID uuid.UUID

// NewMemberID returns a randomly generated MemberID.
func NewMemberID() MemberID { return MemberID(uuid.New()) }

// ParseMemberID decodes the textual form of a MemberID.
func ParseMemberID(s string) (MemberID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return MemberID{}, err
	}
	return MemberID(id), nil
}

// IsZero returns true if the id does not refer to any member.
func (id MemberID) IsZero() bool { return id == MemberID{} }

// String returns the short form used in logs, the first 8 hex digits.
func (id MemberID) String() string {
	if id.IsZero() {
		return "none"
	}
	return uuid.UUID(id).String()[:8]
}

// FullString returns the complete textual form of the id.
func (id MemberID) FullString() string { return uuid.UUID(id).String() }

// MarshalText implements encoding.TextMarshaler.
func (id MemberID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *MemberID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// ClusterID identifies one formation of a cluster. Messages carrying a
// different ClusterID are rejected before they reach the state machine.
type ClusterID uuid.UUID

// NewClusterID returns a randomly generated ClusterID.
func NewClusterID() ClusterID { return ClusterID(uuid.New()) }

// ParseClusterID decodes the textual form of a ClusterID.
func ParseClusterID(s string) (ClusterID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ClusterID{}, err
	}
	return ClusterID(id), nil
}

// IsZero returns true if the cluster id has not been set.
func (id ClusterID) IsZero() bool { return id == ClusterID{} }

func (id ClusterID) String() string { return uuid.UUID(id).String() }

// MarshalText implements encoding.TextMarshaler.
func (id ClusterID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ClusterID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// MemberSet is an immutable set of members. Methods that change membership
// return a new set and leave the receiver untouched.
type MemberSet struct {
	m map[MemberID]struct{}
}

// NewMemberSet returns a set holding ids.
func NewMemberSet(ids ...MemberID) MemberSet {
	s := MemberSet{m: make(map[MemberID]struct{}, len(ids))}
	for _, id := range ids {
		s.m[id] = struct{}{}
	}
	return s
}

// Contains returns true if id is a member of the set.
func (s MemberSet) Contains(id MemberID) bool {
	_, ok := s.m[id]
	return ok
}

// Len returns the number of members in the set.
func (s MemberSet) Len() int { return len(s.m) }

// Members returns the members ordered by id.
func (s MemberSet) Members() []MemberID {
	ids := make([]MemberID, 0, len(s.m))
	for id := range s.m {
		ids = append(ids, id)
	}
	SortMemberIDs(ids)
	return ids
}

// SortMemberIDs sorts ids in place by their canonical string form.
func SortMemberIDs(ids []MemberID) {
	sort.Slice(ids, func(i, j int) bool {
		return strings.Compare(ids[i].FullString(), ids[j].FullString()) < 0
	})
}

// With returns a copy of the set including id.
func (s MemberSet) With(id MemberID) MemberSet {
	other := NewMemberSet(s.Members()...)
	other.m[id] = struct{}{}
	return other
}

// Without returns a copy of the set excluding id.
func (s MemberSet) Without(id MemberID) MemberSet {
	other := NewMemberSet(s.Members()...)
	delete(other.m, id)
	return other
}

// Equal returns true if both sets hold the same members.
func (s MemberSet) Equal(other MemberSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	for id := range s.m {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// IsQuorum returns true if votes holds a strict majority of the set.
// Votes from non-members are not counted.
func (s MemberSet) IsQuorum(votes MemberSet) bool {
	n := 0
	for id := range votes.m {
		if s.Contains(id) {
			n++
		}
	}
	return n > s.Len()/2
}

func (s MemberSet) String() string {
	ids := s.Members()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
