// Package xcpserver is a thin facade managing many concurrent XCP
// sessions, in the shape of the teacher's pkg/server.Server: functional
// ServerOptions building a shared configuration, applied per accepted
// connection instead of pkg/server's single ToolsProvider/
// ResourcesProvider wiring.
package xcpserver

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/xcp-project/xcp/pkg/session"
	"github.com/xcp-project/xcp/pkg/xcplog"
)

// Option configures a Server before it starts accepting connections.
type Option func(*Server)

// WithMaxFrameBytes overrides the advertised max_frame_bytes.
func WithMaxFrameBytes(n uint32) Option {
	return func(s *Server) { s.cfg.MaxFrameBytes = n }
}

// WithCompression enables the COMP-flag zstd pipeline.
func WithCompression(enabled bool) Option {
	return func(s *Server) { s.cfg.Compression = enabled }
}

// WithAEADKey enables the CRYPT-flag ChaCha20-Poly1305 pipeline.
func WithAEADKey(key []byte) Option {
	return func(s *Server) { s.cfg.AEADStaticKey = key }
}

// WithSharedMem advertises shared-memory attachment support.
func WithSharedMem(enabled bool) Option {
	return func(s *Server) { s.cfg.SharedMem = enabled }
}

// WithHandler installs the callback invoked for every unsolicited
// inbound data frame on every session this server accepts.
func WithHandler(h session.Handler) Option {
	return func(s *Server) { s.cfg.Handler = h }
}

// WithLogger installs a structured logger.
func WithLogger(l xcplog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithObserver installs a metrics/tracing collaborator (see
// pkg/observability.SessionObserver) applied to every session this
// server accepts.
func WithObserver(o session.Observer) Option {
	return func(s *Server) { s.cfg.Observer = o }
}

// WithName sets the server's self-reported name. It is stored on the
// Server only; it is not sent on the wire or written to any log line.
func WithName(name string) Option { return func(s *Server) { s.name = name } }

// Server accepts XCP connections and manages their sessions: closing a
// Server closes every session it has ever accepted (spec §5's
// close()-is-idempotent applies per-session, this applies it across the
// whole fleet).
type Server struct {
	name string
	cfg  session.Config
	log  xcplog.Logger

	mu       sync.Mutex
	sessions map[uint64]*session.Session
	nextID   uint64
}

// New builds a Server. It does not accept any connections until Serve is
// called once per connection (there is no listener abstraction here: XCP
// is transport-agnostic per spec §1, so accepting a net.Conn, a
// websocket, or a pipe is the caller's concern).
func New(opts ...Option) *Server {
	s := &Server{
		name:     "xcp-server",
		cfg:      session.DefaultConfig(),
		log:      xcplog.Nop(),
		sessions: make(map[uint64]*session.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve performs the server half of the XCP handshake over conn (spec
// §4.5), registers the resulting session, and returns it. The caller is
// responsible for the connection's lifetime beyond that; the session
// removes itself from the registry once its background read loop exits.
func (s *Server) Serve(conn io.ReadWriteCloser) (*session.Session, error) {
	sess, err := session.OpenServer(conn, s.cfg)
	if err != nil {
		s.log.Warn("handshake failed", xcplog.ErrorField(err))
		return nil, fmt.Errorf("xcpserver: serve: %w", err)
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.sessions[id] = sess
	s.mu.Unlock()

	s.log.Info("session accepted", xcplog.Uint64("session_id", id), xcplog.String("trace_id", uuid.New().String()))

	go func() {
		_ = sess.Wait()
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		s.log.Info("session removed", xcplog.Uint64("session_id", id))
	}()

	return sess, nil
}

// Sessions returns a snapshot of every currently open session.
func (s *Server) Sessions() []*session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Close closes every session this server has accepted.
func (s *Server) Close() error {
	s.mu.Lock()
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	var firstErr error
	for _, sess := range sessions {
		if err := sess.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
