package mock

import (
	"fmt"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/apply"
	"github.com/influxdata/coreraft/raft"
)

var (
	_ apply.ConsensusMachine = (*RaftMachine)(nil)
	_ apply.Machine          = (*RaftMachine)(nil)
)

// RaftMachine is a mock implementation of the raft machine as seen by the
// apply package.
type RaftMachine struct {
	HandleFn          func(msg raft.Message) (raft.ConsensusOutcome, error)
	TermFn            func() int64
	PanicFn           func()
	ReadEntryFn       func(index int64) (*coreraft.LogEntry, error)
	CoreStateFn       func(index int64) (raft.SnapshotState, error)
	InstallSnapshotFn func(snap raft.SnapshotState) error
}

// NewRaftMachine returns a mock RaftMachine where its methods will return
// zero values or errors.
func NewRaftMachine() *RaftMachine {
	return &RaftMachine{
		HandleFn: func(msg raft.Message) (raft.ConsensusOutcome, error) {
			return raft.ConsensusOutcome{CommitIndex: -1}, nil
		},
		TermFn:  func() int64 { return 0 },
		PanicFn: func() {},
		ReadEntryFn: func(index int64) (*coreraft.LogEntry, error) {
			return nil, fmt.Errorf("not implemented")
		},
		CoreStateFn: func(index int64) (raft.SnapshotState, error) {
			return raft.SnapshotState{}, fmt.Errorf("not implemented")
		},
		InstallSnapshotFn: func(snap raft.SnapshotState) error {
			return fmt.Errorf("not implemented")
		},
	}
}

func (m *RaftMachine) Handle(msg raft.Message) (raft.ConsensusOutcome, error) { return m.HandleFn(msg) }
func (m *RaftMachine) Term() int64                                            { return m.TermFn() }
func (m *RaftMachine) Panic()                                                 { m.PanicFn() }

func (m *RaftMachine) ReadEntry(index int64) (*coreraft.LogEntry, error) {
	return m.ReadEntryFn(index)
}

func (m *RaftMachine) CoreState(index int64) (raft.SnapshotState, error) {
	return m.CoreStateFn(index)
}

func (m *RaftMachine) InstallSnapshot(snap raft.SnapshotState) error {
	return m.InstallSnapshotFn(snap)
}
