package session

import (
	"time"

	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/frame"
	"github.com/xcp-project/xcp/pkg/xcpconst"
)

// Config carries the negotiable and local-only limits a session enforces
// (spec §6's configuration table). It mirrors the teacher's
// TransportConfig/DefaultTransportConfig layered-struct-with-defaults
// pattern (pkg/transport/transport.go).
type Config struct {
	// MaxFrameBytes bounds a single frame's payload; advertised in HELLO
	// and negotiated to the min of both peers.
	MaxFrameBytes uint32
	// MaxAssembledBytes bounds a fully reassembled message.
	MaxAssembledBytes uint64
	// AssemblyTimeoutMS expires a stalled chunk assembly.
	AssemblyTimeoutMS uint64
	// DupWindowSize is the sliding window size for duplicate suppression.
	DupWindowSize int
	// CodecPolicy governs sender-side codec selection (spec §4.2).
	CodecPolicy xcpconst.CodecPolicy
	// MaxInflightAssemblies caps concurrent reassemblies.
	MaxInflightAssemblies int
	// RetryBaseMS and RetryMaxAttempts tune NACK-triggered retry/backoff.
	RetryBaseMS     uint64
	RetryMaxAttempts int
	// Compression enables the COMP flag and the zstd pipeline.
	Compression bool
	// AEADStaticKey, if non-nil, enables the CRYPT flag and
	// ChaCha20-Poly1305 sealing with this static key.
	AEADStaticKey []byte
	// SharedMem advertises shared-memory attachment support in HELLO/CAPS.
	SharedMem bool
	// Handler is invoked for unsolicited inbound data frames (frames that
	// are not the response half of a pending request()). It runs off the
	// read loop's goroutine so it never blocks the write path.
	Handler Handler

	// Observer, if set, receives session and frame-level events for
	// metrics/tracing (pkg/observability implements this). Nil disables
	// all instrumentation with no overhead beyond a nil check.
	Observer Observer
}

// Direction distinguishes an outbound (send/pack) frame operation from
// an inbound (receive/parse) one, for Observer.RecordFrameSpan.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

// Observer is the metrics/tracing collaborator a Session reports to. It
// mirrors the subset of pkg/observability.MetricsProvider that the
// session engine itself can produce without knowing about Prometheus or
// OpenTelemetry; pkg/observability.SessionObserver adapts a
// MetricsProvider and TracingProvider pair to this interface.
type Observer interface {
	RecordStateTransition(from, to string)
	RecordAckSent()
	RecordNackSent(errorCode int)
	RecordRetry(attempt int)
	RecordPackLatency(d time.Duration)
	RecordParseLatency(d time.Duration)

	// RecordFrameSpan reports one frame pack (Outbound) or parse
	// (Inbound) operation, tagged with that frame's header. The caller
	// invokes the returned function exactly once with the operation's
	// result once it completes.
	RecordFrameSpan(h frame.Header, dir Direction) func(err error)
}

// Handler processes an inbound data message and may return a response to
// send back with in_reply_to set to the inbound msg_id (spec §6's
// "Handler" collaborator contract).
type Handler func(s *Session, header frame.Header, e *ether.Ether) (*ether.Ether, error)

// DefaultConfig returns spec-default limits (spec §4.5, §6).
func DefaultConfig() Config {
	return Config{
		MaxFrameBytes:         xcpconst.DefaultMaxFrameBytes,
		MaxAssembledBytes:     256 << 20, // 256 MiB
		AssemblyTimeoutMS:     30_000,
		DupWindowSize:         4096,
		CodecPolicy:           xcpconst.PolicyAuto,
		MaxInflightAssemblies: 1024,
		RetryBaseMS:           50,
		RetryMaxAttempts:      3,
	}
}
