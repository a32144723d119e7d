package raft

import (
	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/logger"
	"go.uber.org/zap"
)

// Outbound delivers messages to other members. Delivery is best effort:
// messages may be dropped, duplicated or reordered.
type Outbound interface {
	Send(to coreraft.MemberID, msg Message)
}

// OutboundFunc adapts a function to Outbound.
type OutboundFunc func(to coreraft.MemberID, msg Message)

// Send calls f.
func (f OutboundFunc) Send(to coreraft.MemberID, msg Message) { f(to, msg) }

// LoggingOutbound logs every message at debug level before passing it on.
type LoggingOutbound struct {
	Outbound Outbound
	log      *zap.Logger
}

// NewLoggingOutbound wraps out.
func NewLoggingOutbound(out Outbound, log *zap.Logger) *LoggingOutbound {
	return &LoggingOutbound{Outbound: out, log: log}
}

// Send logs and forwards msg.
func (o *LoggingOutbound) Send(to coreraft.MemberID, msg Message) {
	if ce := o.log.Check(zap.DebugLevel, "Outbound message"); ce != nil {
		ce.Write(
			zap.Stringer("to", to),
			zap.Stringer("type", msg.Type()),
			logger.Term(msg.Header().Term),
			zap.Any("message", msg),
		)
	}
	o.Outbound.Send(to, msg)
}
