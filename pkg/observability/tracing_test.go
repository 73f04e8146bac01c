package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xcp-project/xcp/pkg/frame"
	"github.com/xcp-project/xcp/pkg/schema"
	"github.com/xcp-project/xcp/pkg/session"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

func TestSessionObserverEmitsFrameSpans(t *testing.T) {
	tp, err := NewTracingProvider(TracingConfig{
		ServiceName:  "xcp-tracing-test",
		ExporterType: ExporterTypeNoop,
		NeverSample:  []xcpconst.MsgType{xcpconst.MsgPing, xcpconst.MsgPong},
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, tp.Shutdown(context.Background())) }()

	m, err := NewMetricsProvider(MetricsConfig{ServiceName: "xcp-tracing-test", Namespace: "xcp_test_tracing"})
	require.NoError(t, err)

	obs := NewSessionObserver(m, nil).WithTracing(tp, NewSessionID())

	h := frame.Header{
		ChannelID: 1,
		MsgType:   xcpconst.MsgData,
		SchemaKey: schema.Zero,
		MsgID:     42,
	}

	finish := obs.RecordFrameSpan(h, session.Outbound)
	finish(nil)

	finish = obs.RecordFrameSpan(h, session.Inbound)
	finish(errors.New("boom"))
}
