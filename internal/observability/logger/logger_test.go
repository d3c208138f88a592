package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/seatly/internal/observability/context"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextOmitsMissingFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("bare")
	require.Empty(t, logs.All()[0].ContextMap())

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "user", "42")
	WithContext(ctx, base).Info("enriched")

	fields := logs.All()[1].ContextMap()
	require.Equal(t, "req-1", fields["request_id"])
	require.Equal(t, "user", fields["actor_type"])
	require.Equal(t, "42", fields["actor_id"])
	require.NotContains(t, fields, "trace_id")
}

func TestWithEventTagsProcessorEvent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	WithEvent(zap.New(core), "stripe", " evt_1 ", "invoice.payment_failed").Warn("handler failed")

	fields := logs.All()[0].ContextMap()
	require.Equal(t, "stripe", fields["provider"])
	require.Equal(t, "evt_1", fields["event_id"])
	require.Equal(t, "invoice.payment_failed", fields["event_type"])
	require.Nil(t, WithEvent(nil, "stripe", "evt_1", "x"))
}

func TestNormalizeFormat(t *testing.T) {
	require.Equal(t, "console", normalizeFormat(" Console "))
	require.Equal(t, "json", normalizeFormat(""))
	require.Equal(t, "json", normalizeFormat("logfmt"))
}
