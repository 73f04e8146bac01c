// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for XCP sessions, retargeted from the teacher's MCP
// request/tool/resource metrics at frame-level and session-level
// operations: pack/parse latency, codec selection, ACK/NACK counts,
// chunk reassembly, and session state transitions.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	MetricsPath string // HTTP path for the metrics endpoint (default: /metrics)
	MetricsPort int    // Port for the metrics server (default: 9090)

	Namespace        string    // Prometheus namespace (default: xcp)
	Subsystem        string    // Prometheus subsystem
	HistogramBuckets []float64 // Custom histogram buckets for latency

	ConstLabels prometheus.Labels
}

// MetricsProvider records XCP session and frame-level events.
type MetricsProvider interface {
	// RecordFrameSent/RecordFrameReceived record one frame crossing the
	// wire in either direction, tagged by its msg_type and codec name.
	RecordFrameSent(ctx context.Context, msgType, codec string, bytes int)
	RecordFrameReceived(ctx context.Context, msgType, codec string, bytes int)

	// RecordPackLatency/RecordParseLatency record the time spent in
	// frame.Pack/frame.Parse plus the transform pipeline around them.
	RecordPackLatency(ctx context.Context, duration time.Duration)
	RecordParseLatency(ctx context.Context, duration time.Duration)

	// RecordCodecSelection counts a sender-side codec choice (spec §4.2).
	RecordCodecSelection(ctx context.Context, codec string)

	// RecordAck/RecordNack count reliability-layer outcomes.
	RecordAck(ctx context.Context)
	RecordNack(ctx context.Context, errCode int)

	// RecordRetry counts a NACK-triggered resend attempt.
	RecordRetry(ctx context.Context, attempt int)

	// RecordAssemblyDuration records how long a chunked message took to
	// fully reassemble, from first chunk to last.
	RecordAssemblyDuration(ctx context.Context, duration time.Duration)

	// RecordSessionStateTransition counts a Session.State() change.
	RecordSessionStateTransition(ctx context.Context, from, to string)

	// RecordActiveSessions records the change in currently open sessions.
	RecordActiveSessions(ctx context.Context, delta int)

	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// PrometheusMetricsProvider implements MetricsProvider using Prometheus.
type PrometheusMetricsProvider struct {
	config MetricsConfig
	server *http.Server

	framesSent          *prometheus.CounterVec
	framesReceived      *prometheus.CounterVec
	bytesSent           *prometheus.CounterVec
	bytesReceived       *prometheus.CounterVec
	packLatency         prometheus.Histogram
	parseLatency        prometheus.Histogram
	codecSelections     *prometheus.CounterVec
	acksTotal           prometheus.Counter
	nacksTotal          *prometheus.CounterVec
	retriesTotal        *prometheus.CounterVec
	assemblyDuration    prometheus.Histogram
	sessionTransitions  *prometheus.CounterVec
	activeSessions      prometheus.Gauge

	mu sync.RWMutex
}

// NewMetricsProvider creates a Prometheus-backed MetricsProvider.
func NewMetricsProvider(config MetricsConfig) (MetricsProvider, error) {
	if config.Namespace == "" {
		config.Namespace = "xcp"
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.MetricsPort == 0 {
		config.MetricsPort = 9090
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000}
	}
	if config.ConstLabels == nil {
		config.ConstLabels = prometheus.Labels{}
	}
	config.ConstLabels["service"] = config.ServiceName
	config.ConstLabels["version"] = config.ServiceVersion
	config.ConstLabels["environment"] = config.Environment

	p := &PrometheusMetricsProvider{config: config}
	p.init()
	if err := p.register(); err != nil {
		return nil, fmt.Errorf("observability: registering metrics: %w", err)
	}
	return p, nil
}

func (p *PrometheusMetricsProvider) init() {
	ns, sub, labels := p.config.Namespace, p.config.Subsystem, p.config.ConstLabels

	p.framesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "frames_sent_total",
		Help: "Total number of frames sent, by msg_type and codec.", ConstLabels: labels,
	}, []string{"msg_type", "codec"})

	p.framesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "frames_received_total",
		Help: "Total number of frames received, by msg_type and codec.", ConstLabels: labels,
	}, []string{"msg_type", "codec"})

	p.bytesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "bytes_sent_total",
		Help: "Total payload bytes sent, by msg_type.", ConstLabels: labels,
	}, []string{"msg_type"})

	p.bytesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "bytes_received_total",
		Help: "Total payload bytes received, by msg_type.", ConstLabels: labels,
	}, []string{"msg_type"})

	p.packLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: sub, Name: "pack_latency_milliseconds",
		Help: "Latency of frame.Pack plus the send-side transform pipeline.",
		Buckets: p.config.HistogramBuckets, ConstLabels: labels,
	})

	p.parseLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: sub, Name: "parse_latency_milliseconds",
		Help: "Latency of frame.Parse plus the receive-side transform pipeline.",
		Buckets: p.config.HistogramBuckets, ConstLabels: labels,
	})

	p.codecSelections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "codec_selections_total",
		Help: "Sender-side codec selections, by codec name.", ConstLabels: labels,
	}, []string{"codec"})

	p.acksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "acks_total",
		Help: "Total ACKs emitted.", ConstLabels: labels,
	})

	p.nacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "nacks_total",
		Help: "Total NACKs emitted, by error code.", ConstLabels: labels,
	}, []string{"err_code"})

	p.retriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "retries_total",
		Help: "Total NACK-triggered resends, by attempt number.", ConstLabels: labels,
	}, []string{"attempt"})

	p.assemblyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: sub, Name: "assembly_duration_milliseconds",
		Help: "Time from first to last chunk of a reassembled message.",
		Buckets: p.config.HistogramBuckets, ConstLabels: labels,
	})

	p.sessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: sub, Name: "session_state_transitions_total",
		Help: "Session state machine transitions, by from/to state.", ConstLabels: labels,
	}, []string{"from", "to"})

	p.activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: sub, Name: "active_sessions",
		Help: "Number of currently open sessions.", ConstLabels: labels,
	})
}

func (p *PrometheusMetricsProvider) register() error {
	collectors := []prometheus.Collector{
		p.framesSent, p.framesReceived, p.bytesSent, p.bytesReceived,
		p.packLatency, p.parseLatency, p.codecSelections,
		p.acksTotal, p.nacksTotal, p.retriesTotal, p.assemblyDuration,
		p.sessionTransitions, p.activeSessions,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

func (p *PrometheusMetricsProvider) RecordFrameSent(_ context.Context, msgType, codec string, bytes int) {
	p.framesSent.WithLabelValues(msgType, codec).Inc()
	p.bytesSent.WithLabelValues(msgType).Add(float64(bytes))
}

func (p *PrometheusMetricsProvider) RecordFrameReceived(_ context.Context, msgType, codec string, bytes int) {
	p.framesReceived.WithLabelValues(msgType, codec).Inc()
	p.bytesReceived.WithLabelValues(msgType).Add(float64(bytes))
}

func (p *PrometheusMetricsProvider) RecordPackLatency(_ context.Context, d time.Duration) {
	p.packLatency.Observe(float64(d.Microseconds()) / 1000)
}

func (p *PrometheusMetricsProvider) RecordParseLatency(_ context.Context, d time.Duration) {
	p.parseLatency.Observe(float64(d.Microseconds()) / 1000)
}

func (p *PrometheusMetricsProvider) RecordCodecSelection(_ context.Context, codec string) {
	p.codecSelections.WithLabelValues(codec).Inc()
}

func (p *PrometheusMetricsProvider) RecordAck(_ context.Context) {
	p.acksTotal.Inc()
}

func (p *PrometheusMetricsProvider) RecordNack(_ context.Context, errCode int) {
	p.nacksTotal.WithLabelValues(fmt.Sprintf("0x%04x", errCode)).Inc()
}

func (p *PrometheusMetricsProvider) RecordRetry(_ context.Context, attempt int) {
	p.retriesTotal.WithLabelValues(fmt.Sprint(attempt)).Inc()
}

func (p *PrometheusMetricsProvider) RecordAssemblyDuration(_ context.Context, d time.Duration) {
	p.assemblyDuration.Observe(float64(d.Microseconds()) / 1000)
}

func (p *PrometheusMetricsProvider) RecordSessionStateTransition(_ context.Context, from, to string) {
	p.sessionTransitions.WithLabelValues(from, to).Inc()
}

func (p *PrometheusMetricsProvider) RecordActiveSessions(_ context.Context, delta int) {
	if delta > 0 {
		p.activeSessions.Add(float64(delta))
	} else {
		p.activeSessions.Sub(float64(-delta))
	}
}

// Start serves /metrics on MetricsPort until Shutdown is called.
func (p *PrometheusMetricsProvider) Start(_ context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(p.config.MetricsPath, promhttp.Handler())
	p.server = &http.Server{Addr: fmt.Sprintf(":%d", p.config.MetricsPort), Handler: mux}
	go func() {
		_ = p.server.ListenAndServe()
	}()
	return nil
}

// Shutdown gracefully stops the metrics HTTP server.
func (p *PrometheusMetricsProvider) Shutdown(ctx context.Context) error {
	if p.server != nil {
		return p.server.Shutdown(ctx)
	}
	return nil
}
