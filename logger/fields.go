package logger

import (
	"context"
	"time"

	"github.com/influxdata/coreraft"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// MemberKey is the logging context key used for identifying a cluster member.
	MemberKey = "member"

	// TermKey is the logging context key used for a raft term.
	TermKey = "term"

	// IndexKey is the logging context key used for a log index.
	IndexKey = "index"

	// OperationNameKey is the logging context key used for identifying name of an operation.
	OperationNameKey = "op_name"

	// OperationEventKey is the logging context key used for identifying a notable
	// event during the course of an operation.
	OperationEventKey = "op_event"

	// OperationElapsedKey is the logging context key used for identifying time elapsed to finish an operation.
	OperationElapsedKey = "op_elapsed"
)

const (
	eventStart = "start"
	eventEnd   = "end"
)

// Member returns a field for tracking the member a log line belongs to.
func Member(id coreraft.MemberID) zapcore.Field {
	return zap.Stringer(MemberKey, id)
}

// Term returns a field for tracking a raft term.
func Term(term int64) zapcore.Field {
	return zap.Int64(TermKey, term)
}

// Index returns a field for tracking a log index.
func Index(index int64) zapcore.Field {
	return zap.Int64(IndexKey, index)
}

// OperationName returns a field for tracking the name of an operation.
func OperationName(name string) zapcore.Field {
	return zap.String(OperationNameKey, name)
}

// OperationElapsed returns a field for tracking the duration of an operation.
func OperationElapsed(d time.Duration) zapcore.Field {
	return zap.Duration(OperationElapsedKey, d)
}

// OperationEventStart returns a field for tracking the start of an operation.
func OperationEventStart() zapcore.Field {
	return zap.String(OperationEventKey, eventStart)
}

// OperationEventEnd returns a field for tracking the end of an operation.
func OperationEventEnd() zapcore.Field {
	return zap.String(OperationEventKey, eventEnd)
}

// NewOperation creates a logger with fields containing the operation name,
// starting from the logger carried by ctx or log when ctx has none. It logs
// msg at the start and returns a context carrying the new logger along with
// a function that logs msg again, with the elapsed time, when called.
func NewOperation(ctx context.Context, log *zap.Logger, msg, name string, fields ...zapcore.Field) (*zap.Logger, context.Context, func()) {
	f := []zapcore.Field{OperationName(name)}
	if len(fields) > 0 {
		f = append(f, fields...)
	}

	now := time.Now()
	log = FromContext(ctx, log).With(f...)
	log.Info(msg+" (start)", OperationEventStart())

	return log, NewContextWithLogger(ctx, log), func() {
		log.Info(msg+" (end)", OperationEventEnd(), OperationElapsed(time.Since(now)))
	}
}
