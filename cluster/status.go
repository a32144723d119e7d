package cluster

import (
	"context"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/raft"
)

// Status is a point-in-time view of one member.
type Status struct {
	Member           coreraft.MemberID   `json:"member"`
	Role             raft.Role           `json:"role"`
	Term             int64               `json:"term"`
	Leader           *coreraft.MemberID  `json:"leader,omitempty"`
	VotedFor         *coreraft.MemberID  `json:"voted_for,omitempty"`
	VotingMembers    []coreraft.MemberID `json:"voting_members"`
	PrevIndex        int64               `json:"prev_index"`
	AppendIndex      int64               `json:"append_index"`
	CommitIndex      int64               `json:"commit_index"`
	LastApplied      int64               `json:"last_applied"`
	AwaitingSnapshot bool                `json:"awaiting_snapshot"`
	Panicked         bool                `json:"panicked"`
}

// Status returns the current status of the member.
func (m *Member) Status(ctx context.Context) (*Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &Status{
		Member:           m.ID,
		Role:             m.Machine.Role(),
		Term:             m.Machine.Term(),
		VotingMembers:    m.Machine.VotingMembers().Members(),
		PrevIndex:        m.Log.PrevIndex(),
		AppendIndex:      m.Machine.AppendIndex(),
		CommitIndex:      m.Machine.CommitIndex(),
		LastApplied:      m.Commands.LastApplied(),
		AwaitingSnapshot: m.Applier.AwaitingSnapshot(),
		Panicked:         m.Applier.Panicked() || m.Machine.Panicked(),
	}
	if id := m.Machine.Leader(); !id.IsZero() {
		s.Leader = &id
	}
	if id := m.Machine.VotedFor(); !id.IsZero() {
		s.VotedFor = &id
	}
	return s, nil
}
