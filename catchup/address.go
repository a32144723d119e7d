// Package catchup brings a member that fell too far behind back to a
// baseline by downloading a snapshot and the committed log tail from a
// peer.
package catchup

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/errors"
)

// ErrNoUpstream is returned when no member can be chosen to download from.
var ErrNoUpstream = &errors.Error{
	Code: errors.EUnavailable,
	Msg:  "no upstream member available",
}

// AddressProvider picks the members a download is attempted from. The
// downloader alternates between the primary and the secondary member.
type AddressProvider interface {
	Primary() (coreraft.MemberID, error)
	Secondary() (coreraft.MemberID, error)
}

// SingleAddressProvider always returns the same member.
type SingleAddressProvider struct {
	Member coreraft.MemberID
}

func (p SingleAddressProvider) Primary() (coreraft.MemberID, error)   { return p.Member, nil }
func (p SingleAddressProvider) Secondary() (coreraft.MemberID, error) { return p.Member, nil }

// LeaderLocator returns the current leader, or the zero id if none is known.
type LeaderLocator interface {
	Leader() coreraft.MemberID
}

// UpstreamStrategy selects a member to download from.
type UpstreamStrategy interface {
	UpstreamMember() (coreraft.MemberID, error)
}

// PrioritisingAddressProvider prefers the leader as primary and asks the
// strategy for a secondary. Each falls back to the other when it has no
// answer.
type PrioritisingAddressProvider struct {
	leader   LeaderLocator
	strategy UpstreamStrategy
}

// NewPrioritisingAddressProvider returns a provider over leader and strategy.
func NewPrioritisingAddressProvider(leader LeaderLocator, strategy UpstreamStrategy) *PrioritisingAddressProvider {
	return &PrioritisingAddressProvider{leader: leader, strategy: strategy}
}

func (p *PrioritisingAddressProvider) Primary() (coreraft.MemberID, error) {
	if id := p.leader.Leader(); !id.IsZero() {
		return id, nil
	}
	return p.strategy.UpstreamMember()
}

func (p *PrioritisingAddressProvider) Secondary() (coreraft.MemberID, error) {
	id, err := p.strategy.UpstreamMember()
	if err == nil {
		return id, nil
	}
	if id := p.leader.Leader(); !id.IsZero() {
		return id, nil
	}
	return coreraft.MemberID{}, err
}

// RandomWithinGroupStrategy picks a random member sharing the group of
// the local member.
type RandomWithinGroupStrategy struct {
	myself coreraft.MemberID

	mu     sync.Mutex
	groups map[coreraft.MemberID]string
	rand   *rand.Rand
}

// NewRandomWithinGroupStrategy returns a strategy over the member groups.
func NewRandomWithinGroupStrategy(myself coreraft.MemberID, groups map[coreraft.MemberID]string, seed int64) *RandomWithinGroupStrategy {
	s := &RandomWithinGroupStrategy{myself: myself, rand: rand.New(rand.NewSource(seed))}
	s.SetGroups(groups)
	return s
}

// SetGroups replaces the known member groups.
func (s *RandomWithinGroupStrategy) SetGroups(groups map[coreraft.MemberID]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = make(map[coreraft.MemberID]string, len(groups))
	for id, g := range groups {
		s.groups[id] = g
	}
}

func (s *RandomWithinGroupStrategy) UpstreamMember() (coreraft.MemberID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.groups[s.myself]
	if !ok {
		return coreraft.MemberID{}, ErrNoUpstream
	}

	var candidates []coreraft.MemberID
	for id, g := range s.groups {
		if g == group && id != s.myself {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return coreraft.MemberID{}, ErrNoUpstream
	}
	// Map order is random; sort so a seeded strategy is reproducible.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].FullString() < candidates[j].FullString()
	})
	return candidates[s.rand.Intn(len(candidates))], nil
}
