package coreraft

import "fmt"

// ContentType tags the concrete kind of ReplicatedContent for codecs.
type ContentType uint8

const (
	ContentTypeBytes ContentType = iota + 1
	ContentTypeMemberSet
	ContentTypeNewLeaderBarrier
	ContentTypeDistributedOperation
)

func (t ContentType) String() string {
	switch t {
	case ContentTypeBytes:
		return "bytes"
	case ContentTypeMemberSet:
		return "member-set"
	case ContentTypeNewLeaderBarrier:
		return "new-leader-barrier"
	case ContentTypeDistributedOperation:
		return "distributed-operation"
	}
	return fmt.Sprintf("content-type(%d)", uint8(t))
}

// ReplicatedContent is the opaque payload of a log entry. It is produced by
// callers and never modified after it has been appended.
type ReplicatedContent interface {
	ContentType() ContentType

	// Size returns the payload size in bytes, used for cache accounting.
	Size() int64
}

// ByteContent is an uninterpreted payload handed to the storage engine.
type ByteContent []byte

func (c ByteContent) ContentType() ContentType { return ContentTypeBytes }
func (c ByteContent) Size() int64              { return int64(len(c)) }
func (c ByteContent) String() string           { return fmt.Sprintf("ByteContent{%d bytes}", len(c)) }

// MemberSetContent replicates a new voting-member set.
type MemberSetContent struct {
	Members MemberSet
}

func (c *MemberSetContent) ContentType() ContentType { return ContentTypeMemberSet }
func (c *MemberSetContent) Size() int64              { return int64(16 * c.Members.Len()) }
func (c *MemberSetContent) String() string           { return "MemberSet" + c.Members.String() }

// NewLeaderBarrier is appended by every new leader in its own term. Once it
// commits, all entries of earlier terms are known to be committed as well.
type NewLeaderBarrier struct{}

func (NewLeaderBarrier) ContentType() ContentType { return ContentTypeNewLeaderBarrier }
func (NewLeaderBarrier) Size() int64              { return 0 }
func (NewLeaderBarrier) String() string           { return "NewLeaderBarrier" }
