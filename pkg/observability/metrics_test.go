package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsProviderRecordsWithoutError(t *testing.T) {
	m, err := NewMetricsProvider(MetricsConfig{
		ServiceName: "xcp-bench-test",
		Namespace:   "xcp_test_metrics",
	})
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordFrameSent(ctx, "DATA", "json", 128)
	m.RecordFrameReceived(ctx, "DATA", "json", 64)
	m.RecordPackLatency(ctx, 2*time.Millisecond)
	m.RecordParseLatency(ctx, time.Millisecond)
	m.RecordCodecSelection(ctx, "binary_struct")
	m.RecordAck(ctx)
	m.RecordNack(ctx, 0x0003)
	m.RecordRetry(ctx, 1)
	m.RecordAssemblyDuration(ctx, 5*time.Millisecond)
	m.RecordSessionStateTransition(ctx, "INIT", "HELLO_SENT")
	m.RecordActiveSessions(ctx, 1)
	m.RecordActiveSessions(ctx, -1)

	require.NoError(t, m.Shutdown(ctx))
}

func TestSessionObserverAdaptsMetricsProvider(t *testing.T) {
	m, err := NewMetricsProvider(MetricsConfig{ServiceName: "adapter-test", Namespace: "xcp_test_adapter"})
	require.NoError(t, err)

	obs := NewSessionObserver(m, nil)
	obs.RecordStateTransition("OPEN", "CLOSING")
	obs.RecordAckSent()
	obs.RecordNackSent(0x0001)
	obs.RecordRetry(2)
	obs.RecordPackLatency(time.Millisecond)
	obs.RecordParseLatency(time.Millisecond)
}
