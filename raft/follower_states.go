package raft

import (
	"github.com/influxdata/coreraft"
)

// FollowerState is what a leader knows about one follower.
type FollowerState struct {
	// MatchIndex is the highest index known to be replicated on the follower.
	MatchIndex int64
	// NextIndex is the next index the leader will ship to the follower.
	NextIndex int64
}

// FollowerStates is an immutable map of follower progress. Every update
// returns a new value, so an Outcome never aliases the state it came from.
type FollowerStates struct {
	m map[coreraft.MemberID]FollowerState
}

// Get returns the progress of id, or an empty progress if unknown.
func (s FollowerStates) Get(id coreraft.MemberID) FollowerState {
	if fs, ok := s.m[id]; ok {
		return fs
	}
	return FollowerState{MatchIndex: -1}
}

// Len returns the number of tracked followers.
func (s FollowerStates) Len() int { return len(s.m) }

// With returns a copy of s where id has progress fs.
func (s FollowerStates) With(id coreraft.MemberID, fs FollowerState) FollowerStates {
	m := make(map[coreraft.MemberID]FollowerState, len(s.m)+1)
	for k, v := range s.m {
		m[k] = v
	}
	m[id] = fs
	return FollowerStates{m: m}
}

// Each calls fn for every tracked follower in member order.
func (s FollowerStates) Each(fn func(id coreraft.MemberID, fs FollowerState)) {
	ids := make([]coreraft.MemberID, 0, len(s.m))
	for id := range s.m {
		ids = append(ids, id)
	}
	coreraft.SortMemberIDs(ids)
	for _, id := range ids {
		fn(id, s.m[id])
	}
}

// Equal returns true if both hold the same progress for the same followers.
func (s FollowerStates) Equal(other FollowerStates) bool {
	if len(s.m) != len(other.m) {
		return false
	}
	for id, fs := range s.m {
		if ofs, ok := other.m[id]; !ok || ofs != fs {
			return false
		}
	}
	return true
}
