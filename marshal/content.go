// Package marshal implements the binary encoding of log entries and their
// content, used wherever entries leave memory.
package marshal

import (
	"encoding/binary"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/kit/errors"
	"github.com/influxdata/coreraft/replication"
)

// MarshalContent encodes c as its content type followed by its body.
func MarshalContent(c coreraft.ReplicatedContent) ([]byte, error) {
	return appendContent(nil, c)
}

func appendContent(b []byte, c coreraft.ReplicatedContent) ([]byte, error) {
	if c == nil {
		return nil, &errors.Error{Code: errors.EInvalid, Op: "marshal.MarshalContent", Msg: "nil content"}
	}
	b = append(b, byte(c.ContentType()))

	switch c := c.(type) {
	case coreraft.ByteContent:
		return append(b, c...), nil
	case *coreraft.MemberSetContent:
		members := c.Members.Members()
		b = binary.BigEndian.AppendUint32(b, uint32(len(members)))
		for _, m := range members {
			b = append(b, m[:]...)
		}
		return b, nil
	case coreraft.NewLeaderBarrier:
		return b, nil
	case *replication.DistributedOperation:
		b = append(b, c.GlobalSession.ID[:]...)
		b = append(b, c.GlobalSession.Owner[:]...)
		b = binary.BigEndian.AppendUint64(b, uint64(c.OperationID.LocalSessionID))
		b = binary.BigEndian.AppendUint64(b, uint64(c.OperationID.SequenceNumber))
		return appendContent(b, c.Content)
	default:
		return nil, errors.Errorf(errors.EInvalid, "cannot marshal content type %s", c.ContentType())
	}
}

// UnmarshalContent decodes content encoded by MarshalContent.
func UnmarshalContent(b []byte) (coreraft.ReplicatedContent, error) {
	const op = "marshal.UnmarshalContent"
	if len(b) == 0 {
		return nil, &errors.Error{Code: errors.EInvalid, Op: op, Msg: "empty content"}
	}
	typ, body := coreraft.ContentType(b[0]), b[1:]

	switch typ {
	case coreraft.ContentTypeBytes:
		return append(coreraft.ByteContent{}, body...), nil

	case coreraft.ContentTypeMemberSet:
		if len(body) < 4 {
			return nil, errShort(op, typ)
		}
		n := int(binary.BigEndian.Uint32(body))
		body = body[4:]
		if len(body) != 16*n {
			return nil, errShort(op, typ)
		}
		ids := make([]coreraft.MemberID, n)
		for i := range ids {
			copy(ids[i][:], body[16*i:])
		}
		return &coreraft.MemberSetContent{Members: coreraft.NewMemberSet(ids...)}, nil

	case coreraft.ContentTypeNewLeaderBarrier:
		return coreraft.NewLeaderBarrier{}, nil

	case coreraft.ContentTypeDistributedOperation:
		const header = 16 + 16 + 8 + 8
		if len(body) < header {
			return nil, errShort(op, typ)
		}
		dop := &replication.DistributedOperation{}
		copy(dop.GlobalSession.ID[:], body[0:16])
		copy(dop.GlobalSession.Owner[:], body[16:32])
		dop.OperationID.LocalSessionID = int64(binary.BigEndian.Uint64(body[32:40]))
		dop.OperationID.SequenceNumber = int64(binary.BigEndian.Uint64(body[40:48]))
		content, err := UnmarshalContent(body[header:])
		if err != nil {
			return nil, err
		}
		dop.Content = content
		return dop, nil

	default:
		return nil, &errors.Error{Code: errors.EInvalid, Op: op, Msg: "unknown content type " + typ.String()}
	}
}

func errShort(op string, typ coreraft.ContentType) error {
	return &errors.Error{Code: errors.EInvalid, Op: op, Msg: "truncated " + typ.String() + " content"}
}
