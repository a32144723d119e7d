package logger_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/influxdata/coreraft"
	"github.com/influxdata/coreraft/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestConfig_New(t *testing.T) {
	for _, format := range []string{"auto", "json", "console", "logfmt"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			c := logger.NewConfig()
			c.Format = format
			log, err := c.New(&buf)
			require.NoError(t, err)
			log.Info("election started", logger.Term(3))
			require.Contains(t, buf.String(), "election started")
		})
	}
}

func TestConfig_New_UnknownFormat(t *testing.T) {
	c := logger.Config{Format: "xml"}
	_, err := c.New(&bytes.Buffer{})
	require.Error(t, err)
}

func TestConfig_New_Level(t *testing.T) {
	var buf bytes.Buffer
	c := logger.Config{Format: "logfmt", Level: zapcore.WarnLevel}
	log, err := c.New(&buf)
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

// Ensure an operation logs its start and end and hands its logger on
// through the returned context.
func TestNewOperation(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf)
	id := coreraft.NewMemberID()
	opLog, ctx, done := logger.NewOperation(context.Background(), log, "Snapshot download", "catchup_download", logger.Member(id))
	require.Same(t, opLog, logger.FromContext(ctx, log))
	done()

	out := buf.String()
	require.Equal(t, 2, strings.Count(out, "Snapshot download"))
	require.Contains(t, out, id.String())
	require.Contains(t, out, `"op_event": "end"`)
}

// Ensure a nested operation starts from the logger of the enclosing one.
func TestNewOperation_Nested(t *testing.T) {
	var buf bytes.Buffer
	_, ctx, done := logger.NewOperation(context.Background(), logger.New(&buf), "Outer", "outer_op", zap.String("outer_field", "kept"))
	defer done()

	_, _, innerDone := logger.NewOperation(ctx, zap.NewNop(), "Inner", "inner_op")
	innerDone()

	out := buf.String()
	require.Equal(t, 2, strings.Count(out, "Inner"))
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		require.Contains(t, line, "outer_field")
	}
}

func TestFromContext(t *testing.T) {
	fallback := zap.NewNop()
	require.Same(t, fallback, logger.FromContext(context.Background(), fallback))

	log := zap.NewExample()
	ctx := logger.NewContextWithLogger(context.Background(), log)
	require.Same(t, log, logger.FromContext(ctx, fallback))
}
