package raft

import (
	"fmt"
	"time"

	"github.com/influxdata/coreraft"
)

// MessageType identifies a message on the wire and in logs.
type MessageType uint8

const (
	TypeVoteRequest MessageType = iota + 1
	TypeVoteResponse
	TypePreVoteRequest
	TypePreVoteResponse
	TypeAppendEntriesRequest
	TypeAppendEntriesResponse
	TypeHeartbeat
	TypeHeartbeatResponse
	TypeLogCompactionInfo
	TypeElectionTimeout
	TypeHeartbeatTimeout
	TypeNewEntryRequest
	TypeNewEntryBatchRequest
	TypePruneRequest
)

var messageTypeNames = map[MessageType]string{
	TypeVoteRequest:           "VoteRequest",
	TypeVoteResponse:          "VoteResponse",
	TypePreVoteRequest:        "PreVoteRequest",
	TypePreVoteResponse:       "PreVoteResponse",
	TypeAppendEntriesRequest:  "AppendEntriesRequest",
	TypeAppendEntriesResponse: "AppendEntriesResponse",
	TypeHeartbeat:             "Heartbeat",
	TypeHeartbeatResponse:     "HeartbeatResponse",
	TypeLogCompactionInfo:     "LogCompactionInfo",
	TypeElectionTimeout:       "ElectionTimeout",
	TypeHeartbeatTimeout:      "HeartbeatTimeout",
	TypeNewEntryRequest:       "NewEntryRequest",
	TypeNewEntryBatchRequest:  "NewEntryBatchRequest",
	TypePruneRequest:          "PruneRequest",
}

func (t MessageType) String() string {
	if s, ok := messageTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("MessageType(%d)", uint8(t))
}

// Message is anything a member can handle.
type Message interface {
	Type() MessageType
	Header() Base
}

// Base carries the fields every message has. Local messages such as
// timeouts leave Term at zero.
type Base struct {
	From coreraft.MemberID
	Term int64
}

// Header returns the common fields of a message.
func (b Base) Header() Base { return b }

// VoteRequest asks for a vote in the election for Term.
type VoteRequest struct {
	Base
	Candidate    coreraft.MemberID
	LastLogIndex int64
	LastLogTerm  int64
}

func (*VoteRequest) Type() MessageType { return TypeVoteRequest }

func (m *VoteRequest) String() string {
	return fmt.Sprintf("VoteRequest{from=%s term=%d candidate=%s lastLogIndex=%d lastLogTerm=%d}",
		m.From, m.Term, m.Candidate, m.LastLogIndex, m.LastLogTerm)
}

// VoteResponse answers a VoteRequest with the responder's term.
type VoteResponse struct {
	Base
	Granted bool
}

func (*VoteResponse) Type() MessageType { return TypeVoteResponse }

func (m *VoteResponse) String() string {
	return fmt.Sprintf("VoteResponse{from=%s term=%d granted=%t}", m.From, m.Term, m.Granted)
}

// PreVoteRequest asks whether the sender could win an election, without
// anyone changing term.
type PreVoteRequest struct {
	Base
	Candidate    coreraft.MemberID
	LastLogIndex int64
	LastLogTerm  int64
}

func (*PreVoteRequest) Type() MessageType { return TypePreVoteRequest }

func (m *PreVoteRequest) String() string {
	return fmt.Sprintf("PreVoteRequest{from=%s term=%d candidate=%s lastLogIndex=%d lastLogTerm=%d}",
		m.From, m.Term, m.Candidate, m.LastLogIndex, m.LastLogTerm)
}

// PreVoteResponse answers a PreVoteRequest.
type PreVoteResponse struct {
	Base
	Granted bool
}

func (*PreVoteResponse) Type() MessageType { return TypePreVoteResponse }

func (m *PreVoteResponse) String() string {
	return fmt.Sprintf("PreVoteResponse{from=%s term=%d granted=%t}", m.From, m.Term, m.Granted)
}

// AppendEntriesRequest ships entries following PrevLogIndex.
type AppendEntriesRequest struct {
	Base
	PrevLogIndex int64
	PrevLogTerm  int64
	Entries      []*coreraft.LogEntry
	LeaderCommit int64
}

func (*AppendEntriesRequest) Type() MessageType { return TypeAppendEntriesRequest }

func (m *AppendEntriesRequest) String() string {
	return fmt.Sprintf("AppendEntriesRequest{from=%s term=%d prevLogIndex=%d prevLogTerm=%d entries=%d leaderCommit=%d}",
		m.From, m.Term, m.PrevLogIndex, m.PrevLogTerm, len(m.Entries), m.LeaderCommit)
}

// AppendEntriesResponse reports the outcome of an AppendEntriesRequest.
// MatchIndex is the last index known to match the leader, or -1 on failure.
// AppendIndex is the responder's last log index.
type AppendEntriesResponse struct {
	Base
	Success     bool
	MatchIndex  int64
	AppendIndex int64
}

func (*AppendEntriesResponse) Type() MessageType { return TypeAppendEntriesResponse }

func (m *AppendEntriesResponse) String() string {
	return fmt.Sprintf("AppendEntriesResponse{from=%s term=%d success=%t matchIndex=%d appendIndex=%d}",
		m.From, m.Term, m.Success, m.MatchIndex, m.AppendIndex)
}

// Heartbeat asserts leadership and carries the leader's commit index.
type Heartbeat struct {
	Base
	CommitIndex     int64
	CommitIndexTerm int64
}

func (*Heartbeat) Type() MessageType { return TypeHeartbeat }

func (m *Heartbeat) String() string {
	return fmt.Sprintf("Heartbeat{from=%s term=%d commitIndex=%d commitIndexTerm=%d}",
		m.From, m.Term, m.CommitIndex, m.CommitIndexTerm)
}

// HeartbeatResponse acknowledges a Heartbeat.
type HeartbeatResponse struct {
	Base
}

func (*HeartbeatResponse) Type() MessageType { return TypeHeartbeatResponse }

func (m *HeartbeatResponse) String() string {
	return fmt.Sprintf("HeartbeatResponse{from=%s term=%d}", m.From, m.Term)
}

// LogCompactionInfo tells a follower that the entries it needs have been
// pruned from the leader's log. PrevIndex and PrevTerm describe the last
// pruned entry.
type LogCompactionInfo struct {
	Base
	PrevIndex int64
	PrevTerm  int64
}

func (*LogCompactionInfo) Type() MessageType { return TypeLogCompactionInfo }

func (m *LogCompactionInfo) String() string {
	return fmt.Sprintf("LogCompactionInfo{from=%s term=%d prevIndex=%d prevTerm=%d}", m.From, m.Term, m.PrevIndex, m.PrevTerm)
}

// ElectionTimeout is raised locally when no leader was heard from in time.
// Renewal is the renewal count of the election timer when it fired; a
// machine drops the timeout if the timer was renewed since. Zero is never
// stale.
type ElectionTimeout struct {
	Base
	Renewal uint64
}

func (*ElectionTimeout) Type() MessageType { return TypeElectionTimeout }

func (m *ElectionTimeout) String() string { return "ElectionTimeout{}" }

// HeartbeatTimeout is raised locally when a leader should send heartbeats.
type HeartbeatTimeout struct {
	Base
}

func (*HeartbeatTimeout) Type() MessageType { return TypeHeartbeatTimeout }

func (m *HeartbeatTimeout) String() string { return "HeartbeatTimeout{}" }

// NewEntryRequest submits content for replication.
type NewEntryRequest struct {
	Base
	Content coreraft.ReplicatedContent
}

func (*NewEntryRequest) Type() MessageType { return TypeNewEntryRequest }

func (m *NewEntryRequest) String() string {
	return fmt.Sprintf("NewEntryRequest{from=%s content=%v}", m.From, m.Content)
}

// NewEntryBatchRequest submits several contents at once.
type NewEntryBatchRequest struct {
	Base
	Contents []coreraft.ReplicatedContent
}

func (*NewEntryBatchRequest) Type() MessageType { return TypeNewEntryBatchRequest }

func (m *NewEntryBatchRequest) String() string {
	return fmt.Sprintf("NewEntryBatchRequest{from=%s contents=%d}", m.From, len(m.Contents))
}

// PruneRequest asks the local log to drop entries up to PruneIndex.
type PruneRequest struct {
	Base
	PruneIndex int64
}

func (*PruneRequest) Type() MessageType { return TypePruneRequest }

func (m *PruneRequest) String() string {
	return fmt.Sprintf("PruneRequest{pruneIndex=%d}", m.PruneIndex)
}

// Directed is a message addressed to one member.
type Directed struct {
	To      coreraft.MemberID
	Message Message
}

func (d Directed) String() string {
	return fmt.Sprintf("Directed{to=%s message=%v}", d.To, d.Message)
}

// ClusterIDAwareMessage is a message received from the network, tagged with
// the cluster it was sent in.
type ClusterIDAwareMessage struct {
	ClusterID  coreraft.ClusterID
	Message    Message
	ReceivedAt time.Time
}

// IsLocal returns true for messages that are only ever raised by the member
// itself and therefore never carry a meaningful term.
func IsLocal(m Message) bool {
	switch m.(type) {
	case *ElectionTimeout, *HeartbeatTimeout, *NewEntryRequest, *NewEntryBatchRequest, *PruneRequest:
		return true
	default:
		return false
	}
}
