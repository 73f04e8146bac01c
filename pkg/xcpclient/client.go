// Package xcpclient is a thin, opinionated facade over pkg/session for
// the client side of a connection: functional-options construction in
// the shape of the teacher's pkg/client.Option/ClientConfig, wrapping
// session.OpenClient instead of an MCP Initialize/Start handshake.
package xcpclient

import (
	"context"
	"fmt"
	"io"

	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/schema"
	"github.com/xcp-project/xcp/pkg/session"
	"github.com/xcp-project/xcp/pkg/xcpconst"
	"github.com/xcp-project/xcp/pkg/xcplog"
)

// Option configures a Client before it dials.
type Option func(*settings)

type settings struct {
	name    string
	version string
	cfg     session.Config
	logger  xcplog.Logger
}

// WithName sets the client's self-reported name, carried only in logs
// (XCP's HELLO/CAPS exchange has no name field of its own; spec §4.5's
// Capability record is codec/frame-size/schema-range only).
func WithName(name string) Option { return func(s *settings) { s.name = name } }

// WithVersion sets the client's self-reported version, returned by
// Version(); it is not sent on the wire or written to any log line.
func WithVersion(version string) Option { return func(s *settings) { s.version = version } }

// WithMaxFrameBytes overrides the advertised max_frame_bytes.
func WithMaxFrameBytes(n uint32) Option { return func(s *settings) { s.cfg.MaxFrameBytes = n } }

// WithCodecPolicy overrides the sender-side codec selection policy.
func WithCodecPolicy(p xcpconst.CodecPolicy) Option {
	return func(s *settings) { s.cfg.CodecPolicy = p }
}

// WithCompression enables the COMP-flag zstd pipeline.
func WithCompression(enabled bool) Option { return func(s *settings) { s.cfg.Compression = enabled } }

// WithAEADKey enables the CRYPT-flag ChaCha20-Poly1305 pipeline with a
// 32-byte static key.
func WithAEADKey(key []byte) Option { return func(s *settings) { s.cfg.AEADStaticKey = key } }

// WithSharedMem advertises shared-memory attachment support.
func WithSharedMem(enabled bool) Option { return func(s *settings) { s.cfg.SharedMem = enabled } }

// WithHandler installs the callback invoked for unsolicited inbound data
// frames (frames that are not a Request's response).
func WithHandler(h session.Handler) Option { return func(s *settings) { s.cfg.Handler = h } }

// WithLogger installs a structured logger.
func WithLogger(l xcplog.Logger) Option { return func(s *settings) { s.logger = l } }

// WithObserver installs a metrics/tracing collaborator (see
// pkg/observability.SessionObserver) that receives session state
// transitions, ACK/NACK counts, retries, and pack/parse latency.
func WithObserver(o session.Observer) Option { return func(s *settings) { s.cfg.Observer = o } }

// WithRetryPolicy overrides the NACK-triggered retry base delay and
// maximum attempt count.
func WithRetryPolicy(baseMS uint64, maxAttempts int) Option {
	return func(s *settings) {
		s.cfg.RetryBaseMS = baseMS
		s.cfg.RetryMaxAttempts = maxAttempts
	}
}

// Client wraps an open, negotiated Session with the connection's
// self-reported identity and logger.
type Client struct {
	*session.Session
	name    string
	version string
	log     xcplog.Logger
}

// Dial performs the client half of the XCP handshake over conn and
// returns a ready-to-use Client (spec §4.5).
func Dial(conn io.ReadWriteCloser, opts ...Option) (*Client, error) {
	s := &settings{
		name:    "xcp-client",
		version: "0.1.0",
		cfg:     session.DefaultConfig(),
		logger:  xcplog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	sess, err := session.OpenClient(conn, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("xcpclient: dial: %w", err)
	}
	s.logger.Info("session opened", xcplog.String("role", "client"), xcplog.String("name", s.name))
	return &Client{Session: sess, name: s.name, version: s.version, log: s.logger}, nil
}

// Name returns the client's self-reported name.
func (c *Client) Name() string { return c.name }

// Version returns the client's self-reported version.
func (c *Client) Version() string { return c.version }

// RequestText is a convenience wrapper for the common case of sending a
// "text"-kind Ether and awaiting a same-shaped response.
func (c *Client) RequestText(ctx context.Context, text string) (string, error) {
	resp, err := c.Request(ctx, ether.NewText(text), session.SendOptions{})
	if err != nil {
		return "", err
	}
	return resp.Payload["text"].AsString()
}

// SendSchema sends e tagged with the given schema key on the given
// channel, without waiting for a reply.
func (c *Client) SendSchema(e *ether.Ether, channelID uint32, key schema.Key) (uint64, error) {
	return c.Send(e, session.SendOptions{ChannelID: channelID, SchemaKey: key})
}

// Close closes the underlying session, logging the outcome.
func (c *Client) Close() error {
	err := c.Session.Close()
	c.log.Info("session closed", xcplog.ErrorField(err))
	return err
}
