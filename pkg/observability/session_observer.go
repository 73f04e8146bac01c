package observability

import (
	"context"
	"time"

	"github.com/xcp-project/xcp/pkg/frame"
	"github.com/xcp-project/xcp/pkg/session"
)

// SessionObserver adapts a MetricsProvider and, optionally, a
// TracingProvider to pkg/session.Observer, so a *session.Session can
// report state transitions, ACK/NACK counts, retry attempts, pack/parse
// latency, and per-frame spans without importing this package directly
// (session.Observer is the narrow collaborator interface; SessionObserver
// is one concrete implementation of it).
type SessionObserver struct {
	Metrics MetricsProvider
	Ctx     context.Context

	// Tracing and SessionID are optional; RecordFrameSpan is a no-op
	// until WithTracing attaches both.
	Tracing   *TracingProvider
	SessionID string
}

var _ session.Observer = (*SessionObserver)(nil)

// NewSessionObserver builds a SessionObserver reporting to metrics using
// ctx for every recorded call (background.Context if unset).
func NewSessionObserver(metrics MetricsProvider, ctx context.Context) *SessionObserver {
	if ctx == nil {
		ctx = context.Background()
	}
	return &SessionObserver{Metrics: metrics, Ctx: ctx}
}

// WithTracing attaches tp and a session identifier (see NewSessionID) so
// pack/parse operations also emit spans, and returns o for chaining.
func (o *SessionObserver) WithTracing(tp *TracingProvider, sessionID string) *SessionObserver {
	o.Tracing = tp
	o.SessionID = sessionID
	return o
}

func (o *SessionObserver) RecordStateTransition(from, to string) {
	o.Metrics.RecordSessionStateTransition(o.Ctx, from, to)
}

func (o *SessionObserver) RecordAckSent() {
	o.Metrics.RecordAck(o.Ctx)
}

func (o *SessionObserver) RecordNackSent(errorCode int) {
	o.Metrics.RecordNack(o.Ctx, errorCode)
}

func (o *SessionObserver) RecordRetry(attempt int) {
	o.Metrics.RecordRetry(o.Ctx, attempt)
}

func (o *SessionObserver) RecordPackLatency(d time.Duration) {
	o.Metrics.RecordPackLatency(o.Ctx, d)
}

func (o *SessionObserver) RecordParseLatency(d time.Duration) {
	o.Metrics.RecordParseLatency(o.Ctx, d)
}

// RecordFrameSpan implements session.Observer: it starts a span tagged
// with h's message type, ids, and channel, and returns the function the
// session calls once the pack/parse operation completes.
func (o *SessionObserver) RecordFrameSpan(h frame.Header, dir session.Direction) func(err error) {
	if o.Tracing == nil {
		return func(error) {}
	}
	_, span := o.Tracing.StartFrameSpan(o.Ctx, o.SessionID, h, dir)
	return func(err error) {
		if err != nil {
			o.Tracing.RecordError(span, err)
		}
		span.End()
	}
}
