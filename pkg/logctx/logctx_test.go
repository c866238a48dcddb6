package logctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	require.Equal(t, "trace-1", TraceIDFromCtx(ctx))
	require.Empty(t, TraceIDFromCtx(context.Background()))
	require.Empty(t, TraceIDFromCtx(nil))
}

func TestFromCtx_EnrichesWithTraceID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core).Sugar()

	ctx := WithTraceID(context.Background(), "trace-1")
	FromCtx(ctx, base).Infow("event")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "trace-1", entries[0].ContextMap()["trace_id"])
}

func TestFromCtx_NilBase(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	require.Nil(t, FromCtx(ctx, nil))
}
