package replication

import (
	"fmt"

	"github.com/influxdata/coreraft"
)

// DistributedOperation wraps content with the session and operation id of
// its submitter, so that a resubmitted operation is applied only once.
type DistributedOperation struct {
	Content       coreraft.ReplicatedContent
	GlobalSession GlobalSession
	OperationID   LocalOperationID
}

var _ coreraft.ReplicatedContent = (*DistributedOperation)(nil)

func (op *DistributedOperation) ContentType() coreraft.ContentType {
	return coreraft.ContentTypeDistributedOperation
}

// Size returns the size of the content plus the session header.
func (op *DistributedOperation) Size() int64 {
	const header = 16 + 16 + 8 + 8
	if op.Content == nil {
		return header
	}
	return header + op.Content.Size()
}

func (op *DistributedOperation) String() string {
	return fmt.Sprintf("DistributedOperation{session=%s id=%s content=%v}", op.GlobalSession, op.OperationID, op.Content)
}

// key identifies an operation across the cluster.
type key struct {
	session GlobalSession
	id      LocalOperationID
}

func (op *DistributedOperation) key() key {
	return key{session: op.GlobalSession, id: op.OperationID}
}
