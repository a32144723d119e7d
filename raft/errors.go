package raft

import (
	"github.com/influxdata/coreraft/kit/errors"
)

var (
	// ErrPanicked is returned by every operation of a machine that has panicked.
	ErrPanicked = &errors.Error{
		Code: errors.EPanicked,
		Msg:  "raft machine has panicked and stopped serving",
	}

	// ErrNotLeader is returned when an operation needs the local member to lead.
	ErrNotLeader = &errors.Error{
		Code: errors.EUnavailable,
		Msg:  "not the leader",
	}
)

func errTruncateCommitted(index, commitIndex int64) error {
	return &errors.Error{
		Code: errors.EInternal,
		Op:   "raft.appendEntries",
		Msg:  "refusing to truncate committed entries",
		Err:  errors.Errorf(errors.EInternal, "truncate index %d, commit index %d", index, commitIndex),
	}
}
