package mock

import (
	"context"
	"fmt"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/catchup"
)

var (
	_ catchup.Client    = (*CatchupClient)(nil)
	_ catchup.Installer = (*Installer)(nil)
)

// CatchupClient is a mock implementation of catchup.Client.
type CatchupClient struct {
	CoreSnapshotFn func(ctx context.Context, member coreraft.MemberID) (*catchup.CoreSnapshot, error)
	PullEntriesFn  func(ctx context.Context, member coreraft.MemberID, fromIndex int64) ([]*coreraft.LogEntry, error)
}

// NewCatchupClient returns a mock CatchupClient where its methods will
// return errors.
func NewCatchupClient() *CatchupClient {
	return &CatchupClient{
		CoreSnapshotFn: func(ctx context.Context, member coreraft.MemberID) (*catchup.CoreSnapshot, error) {
			return nil, fmt.Errorf("not implemented")
		},
		PullEntriesFn: func(ctx context.Context, member coreraft.MemberID, fromIndex int64) ([]*coreraft.LogEntry, error) {
			return nil, fmt.Errorf("not implemented")
		},
	}
}

func (c *CatchupClient) CoreSnapshot(ctx context.Context, member coreraft.MemberID) (*catchup.CoreSnapshot, error) {
	return c.CoreSnapshotFn(ctx, member)
}

func (c *CatchupClient) PullEntries(ctx context.Context, member coreraft.MemberID, fromIndex int64) ([]*coreraft.LogEntry, error) {
	return c.PullEntriesFn(ctx, member, fromIndex)
}

// Installer is a mock implementation of catchup.Installer.
type Installer struct {
	InstallFn func(ctx context.Context, snap *catchup.CoreSnapshot, tail []*coreraft.LogEntry) error
}

func (i *Installer) Install(ctx context.Context, snap *catchup.CoreSnapshot, tail []*coreraft.LogEntry) error {
	return i.InstallFn(ctx, snap, tail)
}
