package catchup

import (
	"context"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/raft"
	"github.com/influxdata/coreraft/replication"
)

// CoreSnapshot is the state of a member at a committed log position.
type CoreSnapshot struct {
	Raft     raft.SnapshotState
	Sessions replication.SessionState
	// Data is the opaque state of the storage engine.
	Data []byte
}

// Client fetches snapshots and committed entries from a peer.
type Client interface {
	// CoreSnapshot returns a snapshot of the state of member.
	CoreSnapshot(ctx context.Context, member coreraft.MemberID) (*CoreSnapshot, error)

	// PullEntries returns the entries member has applied from fromIndex on.
	PullEntries(ctx context.Context, member coreraft.MemberID, fromIndex int64) ([]*coreraft.LogEntry, error)
}

// Installer makes a downloaded snapshot and its tail the local baseline.
type Installer interface {
	Install(ctx context.Context, snap *CoreSnapshot, tail []*coreraft.LogEntry) error
}

// validate checks that tail can follow snap.
func validate(snap *CoreSnapshot, tail []*coreraft.LogEntry) error {
	const op = "catchup.validate"
	if snap == nil {
		return &errors.Error{Code: errors.EInvalid, Op: op, Msg: "no snapshot received"}
	}
	if snap.Raft.PrevIndex < 0 {
		return &errors.Error{Code: errors.EInvalid, Op: op, Msg: "snapshot has no log position"}
	}
	if snap.Raft.Members.Len() == 0 {
		return &errors.Error{Code: errors.EInvalid, Op: op, Msg: "snapshot has no voting members"}
	}
	last := snap.Raft.PrevTerm
	for i, e := range tail {
		if e == nil || e.Term < last {
			return errors.Errorf(errors.EInvalid, "entry %d of tail does not follow term %d", snap.Raft.PrevIndex+1+int64(i), last)
		}
		last = e.Term
	}
	return nil
}
