// Package session implements the XCP session engine: handshake and
// capability negotiation, msg_id allocation, chunk reassembly, duplicate
// suppression, and NACK-triggered retry (spec §4.5). It blank-imports the
// two required codecs so a session can always negotiate JSON and
// BINARY_STRUCT regardless of which optional codecs a caller has pulled
// in; callers that want tensor/mixed-latent/arrow/dlpack support import
// those packages themselves before calling Open.
package session

import (
	"bufio"
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xcp-project/xcp/pkg/codec"
	_ "github.com/xcp-project/xcp/pkg/codec/binstruct"
	_ "github.com/xcp-project/xcp/pkg/codec/jsoncodec"
	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/frame"
	"github.com/xcp-project/xcp/pkg/schema"
	"github.com/xcp-project/xcp/pkg/transform"
	"github.com/xcp-project/xcp/pkg/xcpconst"
	"github.com/xcp-project/xcp/pkg/xcperrors"
)

// State is a session's position in the connection state machine (spec
// §3 Lifecycles, §4.5): INIT → (HELLO_SENT|HELLO_RECEIVED) → OPEN →
// CLOSING → CLOSED. Grounded on the teacher's initialized-flag-plus-lock
// pattern in client.Client/server.Server, generalized from a single bool
// to an explicit enum since XCP distinguishes five states, not two.
type State int

const (
	StateInit State = iota
	StateHelloSent
	StateHelloReceived
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateHelloSent:
		return "HELLO_SENT"
	case StateHelloReceived:
		return "HELLO_RECEIVED"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// SendOptions customizes one send()/request() call (spec §4.5).
type SendOptions struct {
	ChannelID uint32
	SchemaKey schema.Key
	InReplyTo uint64
	Tags      []frame.Tag
}

// DataMessage is a fully reassembled and decoded inbound message,
// returned by Recv() (spec §4.5's "recv() → (msg_id, ether, header)").
type DataMessage struct {
	Header frame.Header
	Ether  *ether.Ether
}

type responseOrErr struct {
	ether *ether.Ether
	err   error
}

type sendRecord struct {
	packedFrames [][]byte
	attempts     int
}

// Session is one XCP connection: a single writer, a single background
// reader (spec §5), guarding the handshake, negotiation outcome,
// pending-request table, chunk assembly table, and duplicate-suppression
// window.
type Session struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	cfg    Config

	writeMu sync.Mutex

	mu          sync.Mutex
	state       State
	local       Capability
	neg         negotiated
	nextMsgID   uint64
	pending     map[uint64]chan responseOrErr
	sendRecords map[uint64]*sendRecord
	pingWaiters map[string]chan time.Time
	lastErr     error

	dup *dupWindow
	asm *assemblyTable

	inbound chan *DataMessage

	sealer     transform.Sealer
	compressor transform.Compressor

	closeOnce sync.Once
	closed    chan struct{}

	g *errgroup.Group
}

func newSession(conn io.ReadWriteCloser, cfg Config) *Session {
	s := &Session{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		cfg:         cfg,
		state:       StateInit,
		pending:     make(map[uint64]chan responseOrErr),
		sendRecords: make(map[uint64]*sendRecord),
		pingWaiters: make(map[string]chan time.Time),
		inbound:     make(chan *DataMessage, 64),
		closed:      make(chan struct{}),
	}
	s.dup = newDupWindow(cfg.DupWindowSize)
	s.asm = newAssemblyTable(cfg.MaxAssembledBytes, cfg.MaxInflightAssemblies, time.Duration(cfg.AssemblyTimeoutMS)*time.Millisecond, s.onAssemblyExpire)
	if cfg.Compression {
		s.compressor = transform.NewZstdCompressor()
	}
	if len(cfg.AEADStaticKey) == 32 {
		var key [32]byte
		copy(key[:], cfg.AEADStaticKey)
		if sealer, err := transform.NewChaChaSealer(key); err == nil {
			s.sealer = sealer
		}
	}
	g, _ := errgroup.WithContext(context.Background())
	s.g = g
	return s
}

// OpenClient performs the client half of the handshake (spec §4.5:
// "client → HELLO(caps)") and returns an OPEN session.
func OpenClient(conn io.ReadWriteCloser, cfg Config) (*Session, error) {
	codec.Freeze()
	s := newSession(conn, cfg)
	s.local = localCapability(cfg)

	if err := s.sendHandshake(xcpconst.MsgHello, s.local); err != nil {
		return nil, err
	}
	s.setState(StateHelloSent)

	peerCap, err := s.readHandshake(xcpconst.MsgCaps)
	if err != nil {
		return nil, err
	}
	return s.finishHandshake(peerCap)
}

// OpenServer performs the server half of the handshake (spec §4.5:
// "server → CAPS(caps)") and returns an OPEN session.
func OpenServer(conn io.ReadWriteCloser, cfg Config) (*Session, error) {
	codec.Freeze()
	s := newSession(conn, cfg)
	s.local = localCapability(cfg)

	peerCap, err := s.readHandshake(xcpconst.MsgHello)
	if err != nil {
		return nil, err
	}
	s.setState(StateHelloReceived)

	if err := s.sendHandshake(xcpconst.MsgCaps, s.local); err != nil {
		return nil, err
	}
	return s.finishHandshake(peerCap)
}

func (s *Session) finishHandshake(peerCap Capability) (*Session, error) {
	s.neg = negotiate(s.local, peerCap)
	if len(s.neg.codecs) == 0 {
		_ = s.Nack(0, xcperrors.ErrCodecUnsupported, nil)
		_ = s.Close()
		return nil, xcperrors.CodecUnsupported("empty codec intersection after negotiation")
	}
	s.setState(StateOpen)
	s.g.Go(func() error {
		s.readLoop()
		return nil
	})
	return s, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	from := s.state
	s.state = st
	s.mu.Unlock()
	if s.cfg.Observer != nil {
		s.cfg.Observer.RecordStateTransition(from.String(), st.String())
	}
}

// Err returns the error that triggered the last automatic close, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Wait blocks until the session's background goroutines have exited.
// Intended for callers (tests, cmd/xcp-bench) that want to observe full
// shutdown; Close itself never calls this, since Close can be invoked
// from within the very goroutine Wait would join.
func (s *Session) Wait() error {
	return s.g.Wait()
}

func (s *Session) allocMsgID() uint64 {
	s.mu.Lock()
	s.nextMsgID++
	id := s.nextMsgID
	s.mu.Unlock()
	return id
}

// packTransformed applies compress-then-encrypt (spec §4.4's send-side
// order) and packs the resulting bytes into a complete frame.
func (s *Session) packTransformed(h frame.Header, plaintext []byte, flags xcpconst.Flags) (out []byte, err error) {
	if s.cfg.Observer != nil {
		start := time.Now()
		finish := s.cfg.Observer.RecordFrameSpan(h, Outbound)
		defer func() {
			s.cfg.Observer.RecordPackLatency(time.Since(start))
			finish(err)
		}()
	}
	payload := plaintext
	if s.compressor != nil {
		c, err := s.compressor.Compress(payload)
		if err != nil {
			return nil, fmt.Errorf("session: compressing payload: %w", err)
		}
		payload = c
		flags |= xcpconst.FlagCOMP
	}
	if s.sealer != nil {
		ct, err := s.sealer.Seal(h.ChannelID, h.MsgID, payload)
		if err != nil {
			return nil, fmt.Errorf("session: sealing payload: %w", err)
		}
		payload = ct
		flags |= xcpconst.FlagCRYPT
	}
	return frame.Pack(h, payload, flags, false)
}

// reverseTransforms undoes decrypt-then-decompress (spec §4.4's
// receive-side order) on a parsed frame's payload.
func (s *Session) reverseTransforms(frm *frame.Frame) (out []byte, err error) {
	if s.cfg.Observer != nil {
		start := time.Now()
		finish := s.cfg.Observer.RecordFrameSpan(frm.Header, Inbound)
		defer func() {
			s.cfg.Observer.RecordParseLatency(time.Since(start))
			finish(err)
		}()
	}
	payload := frm.Payload
	if frm.Flags.Has(xcpconst.FlagCRYPT) {
		if s.sealer == nil {
			return nil, xcperrors.CrcMismatch("CRYPT flag set but no AEAD configured locally")
		}
		pt, err := s.sealer.Open(frm.Header.ChannelID, frm.Header.MsgID, payload)
		if err != nil {
			return nil, xcperrors.CrcMismatch("aead authentication failed: " + err.Error())
		}
		payload = pt
	}
	if frm.Flags.Has(xcpconst.FlagCOMP) {
		if s.compressor == nil {
			return nil, xcperrors.HeaderMalformed("COMP flag set but no compressor configured locally")
		}
		pt, err := s.compressor.Decompress(payload)
		if err != nil {
			return nil, xcperrors.HeaderMalformed("decompressing payload: " + err.Error())
		}
		payload = pt
	}
	return payload, nil
}

func (s *Session) sendHandshake(msgType xcpconst.MsgType, cap Capability) error {
	msgID := s.allocMsgID()
	payload, err := encodeCapability(cap)
	if err != nil {
		return err
	}
	h := frame.Header{ChannelID: 0, MsgType: msgType, BodyCodec: xcpconst.CodecBinaryStruct, SchemaKey: schema.Zero, MsgID: msgID}
	buf, err := s.packTransformed(h, payload, 0)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.conn.Write(buf)
	return err
}

// readHandshake reads exactly one frame and requires it to be the
// expected handshake message type; anything else in INIT is a fatal
// protocol error (spec §4.5: "A frame other than HELLO received in INIT
// ⇒ fatal protocol error").
func (s *Session) readHandshake(expected xcpconst.MsgType) (Capability, error) {
	frm, err := frame.Parse(s.reader)
	if err != nil {
		return Capability{}, err
	}
	if frm.Header.MsgType != expected {
		return Capability{}, xcperrors.HeaderMalformed(
			fmt.Sprintf("expected %s during handshake, got %s", expected, frm.Header.MsgType))
	}
	payload, err := s.reverseTransforms(frm)
	if err != nil {
		return Capability{}, err
	}
	return decodeCapability(payload)
}

func (s *Session) sendControl(msgType xcpconst.MsgType, e *ether.Ether, inReplyTo uint64) error {
	msgID := s.allocMsgID()
	c, ok := codec.Lookup(xcpconst.CodecJSON)
	if !ok {
		return fmt.Errorf("session: JSON codec not registered")
	}
	payload, err := c.Encode(e)
	if err != nil {
		return err
	}
	h := frame.Header{ChannelID: 0, MsgType: msgType, BodyCodec: xcpconst.CodecJSON, SchemaKey: schema.Zero, MsgID: msgID, InReplyTo: inReplyTo}
	buf, err := s.packTransformed(h, payload, 0)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.conn.Write(buf)
	return err
}

func ackEther(msgID uint64) *ether.Ether {
	e := ether.New("ack", 1)
	e.Payload["msg_id"] = ether.Int(int64(msgID))
	return e
}

func nackEther(msgID uint64, code int, retryAfterMS *uint64) *ether.Ether {
	e := ether.New("nack", 1)
	e.Payload["msg_id"] = ether.Int(int64(msgID))
	e.Payload["error_code"] = ether.Int(int64(code))
	if retryAfterMS != nil {
		e.Payload["retry_after_ms"] = ether.Int(int64(*retryAfterMS))
	}
	return e
}

// Ack emits an ACK control frame for msgID (spec §4.5, §4.6). The engine
// already auto-acknowledges every message it fully decodes; this is
// exposed for a Handler that wants to re-confirm delivery explicitly.
func (s *Session) Ack(msgID uint64) error {
	if s.cfg.Observer != nil {
		s.cfg.Observer.RecordAckSent()
	}
	return s.sendControl(xcpconst.MsgAck, ackEther(msgID), msgID)
}

// Nack emits a NACK control frame for msgID with the given wire error
// code and optional retry_after_ms (spec §4.5, §4.6). Application code
// calls this when a Handler rejects a message on business-logic grounds
// even though the wire-level receipt already succeeded.
func (s *Session) Nack(msgID uint64, errorCode int, retryAfterMS *uint64) error {
	if s.cfg.Observer != nil {
		s.cfg.Observer.RecordNackSent(errorCode)
	}
	return s.sendControl(xcpconst.MsgNack, nackEther(msgID, errorCode, retryAfterMS), msgID)
}

// Ping sends a PING with a random nonce and blocks for the matching PONG,
// returning the observed round-trip latency (spec §4.5).
func (s *Session) Ping(ctx context.Context) (time.Duration, error) {
	nonceBytes := make([]byte, 8)
	if _, err := cryptorand.Read(nonceBytes); err != nil {
		return 0, err
	}
	nonce := hex.EncodeToString(nonceBytes)

	ch := make(chan time.Time, 1)
	s.mu.Lock()
	s.pingWaiters[nonce] = ch
	s.mu.Unlock()

	sentAt := time.Now()
	e := ether.New("ping", 1)
	e.Payload["nonce"] = ether.String(nonce)
	if err := s.sendControl(xcpconst.MsgPing, e, 0); err != nil {
		s.mu.Lock()
		delete(s.pingWaiters, nonce)
		s.mu.Unlock()
		return 0, err
	}

	select {
	case t := <-ch:
		return t.Sub(sentAt), nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pingWaiters, nonce)
		s.mu.Unlock()
		return 0, xcperrors.Timeout()
	case <-s.closed:
		return 0, xcperrors.SessionClosed()
	}
}

// Send allocates a msg_id, encodes e per the negotiated codec policy,
// chunks it if necessary, and writes it (spec §4.5).
func (s *Session) Send(e *ether.Ether, opts SendOptions) (uint64, error) {
	if s.State() != StateOpen {
		return 0, fmt.Errorf("session: not open (state=%s)", s.State())
	}
	msgID := s.allocMsgID()
	if err := s.dispatch(e, opts, msgID); err != nil {
		return 0, err
	}
	return msgID, nil
}

// Request sends e and blocks until a data frame arrives with
// in_reply_to == the sent msg_id, or ctx is done, or the session closes
// (spec §4.5).
func (s *Session) Request(ctx context.Context, e *ether.Ether, opts SendOptions) (*ether.Ether, error) {
	if s.State() != StateOpen {
		return nil, fmt.Errorf("session: not open (state=%s)", s.State())
	}
	msgID := s.allocMsgID()
	ch := make(chan responseOrErr, 1)
	s.mu.Lock()
	s.pending[msgID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, msgID)
		s.mu.Unlock()
	}()

	if err := s.dispatch(e, opts, msgID); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.ether, r.err
	case <-ctx.Done():
		return nil, xcperrors.Timeout()
	case <-s.closed:
		return nil, xcperrors.SessionClosed()
	}
}

// dispatch encodes, chunks, packs, and writes a data message under
// msgID, recording the packed frames for NACK-triggered retry.
func (s *Session) dispatch(e *ether.Ether, opts SendOptions, msgID uint64) error {
	if _, ok := e.Metadata[xcpconst.MetaTraceID]; !ok {
		e.WithMetadata(xcpconst.MetaTraceID, ether.String(uuid.NewString()))
	}

	codecID, encoded, err := s.selectCodec(e)
	if err != nil {
		return err
	}

	maxFrame := int(s.neg.maxFrameBytes)
	if maxFrame <= 0 {
		maxFrame = int(s.cfg.MaxFrameBytes)
	}

	var chunks [][]byte
	if maxFrame <= 0 || len(encoded) <= maxFrame {
		chunks = [][]byte{encoded}
	} else {
		for off := 0; off < len(encoded); off += maxFrame {
			end := off + maxFrame
			if end > len(encoded) {
				end = len(encoded)
			}
			chunks = append(chunks, encoded[off:end])
		}
	}

	packed := make([][]byte, 0, len(chunks))
	for i, chunk := range chunks {
		var flags xcpconst.Flags
		if i < len(chunks)-1 {
			flags |= xcpconst.FlagMORE
		}
		h := frame.Header{
			ChannelID: opts.ChannelID,
			MsgType:   xcpconst.MsgData,
			BodyCodec: codecID,
			SchemaKey: opts.SchemaKey,
			MsgID:     msgID,
			InReplyTo: opts.InReplyTo,
			Tags:      opts.Tags,
		}
		buf, err := s.packTransformed(h, chunk, flags)
		if err != nil {
			return err
		}
		packed = append(packed, buf)
	}

	s.mu.Lock()
	s.sendRecords[msgID] = &sendRecord{packedFrames: packed}
	s.mu.Unlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, buf := range packed {
		if _, err := s.conn.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) resend(msgID uint64) {
	s.mu.Lock()
	rec, ok := s.sendRecords[msgID]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, buf := range rec.packedFrames {
		if _, err := s.conn.Write(buf); err != nil {
			return
		}
	}
}

// Recv blocks for the next fully reassembled inbound data message that
// was not consumed by a matching Request() call (spec §4.5).
func (s *Session) Recv(ctx context.Context) (*DataMessage, error) {
	select {
	case m := <-s.inbound:
		return m, nil
	case <-ctx.Done():
		return nil, xcperrors.Timeout()
	case <-s.closed:
		return nil, xcperrors.SessionClosed()
	}
}

// Close is idempotent: it stops the read loop, releases every pending
// assembly and request with SessionClosed, and closes the underlying
// stream (spec §5 Cancellation).
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		close(s.closed)
		_ = s.conn.Close()
		s.asm.DropAll()

		s.mu.Lock()
		for id, ch := range s.pending {
			select {
			case ch <- responseOrErr{err: xcperrors.SessionClosed()}:
			default:
			}
			delete(s.pending, id)
		}
		s.sendRecords = make(map[uint64]*sendRecord)
		s.mu.Unlock()

		s.setState(StateClosed)
	})
	return nil
}

func (s *Session) closeInternal(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	_ = s.Close()
}

func (s *Session) onAssemblyExpire(msgID uint64) {
	s.emitNack(msgID, xcperrors.ErrMessageTooLarge, nil)
}

func (s *Session) emitNack(msgID uint64, code int, retryAfterMS *uint64) {
	_ = s.Nack(msgID, code, retryAfterMS)
}

// readLoop is the session's single background reader (spec §5:
// "a single writer, a single reader"). Grounded on the teacher's
// StdioTransport.Start scanner-goroutine shape, simplified to a direct
// loop since frame.Parse already knows how to find message boundaries.
func (s *Session) readLoop() {
	for {
		frm, err := frame.Parse(s.reader)
		if err != nil {
			if err == io.EOF {
				s.closeInternal(xcperrors.SessionClosed())
				return
			}
			s.closeInternal(err)
			return
		}
		if fatal := s.handleFrame(frm); fatal != nil {
			s.closeInternal(fatal)
			return
		}
	}
}

// handleFrame dispatches one parsed frame. A non-nil return is
// connection-fatal (spec §7); everything else is handled to completion
// (possibly emitting a NACK) without returning an error.
func (s *Session) handleFrame(frm *frame.Frame) error {
	payload, err := s.reverseTransforms(frm)
	if err != nil {
		return err
	}
	h := frm.Header

	switch h.MsgType {
	case xcpconst.MsgHello, xcpconst.MsgCaps:
		return xcperrors.HeaderMalformed("unexpected handshake message after OPEN")
	case xcpconst.MsgAck:
		s.handleAck(payload)
	case xcpconst.MsgNack:
		s.handleNack(payload)
	case xcpconst.MsgPing:
		s.handlePing(h, payload)
	case xcpconst.MsgPong:
		s.handlePong(payload)
	default:
		s.handleData(h, frm.Flags, payload)
	}
	return nil
}

func (s *Session) handleAck(payload []byte) {
	e, err := s.decodeJSONControl(payload)
	if err != nil {
		return
	}
	msgID, err := e.Payload["msg_id"].AsInt()
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.sendRecords, uint64(msgID))
	s.mu.Unlock()
}

func (s *Session) handleNack(payload []byte) {
	e, err := s.decodeJSONControl(payload)
	if err != nil {
		return
	}
	msgIDVal, err := e.Payload["msg_id"].AsInt()
	if err != nil {
		return
	}
	msgID := uint64(msgIDVal)
	codeVal, _ := e.Payload["error_code"].AsInt()

	var retryAfter *uint64
	if v, ok := e.Payload["retry_after_ms"]; ok {
		if ra, err := v.AsInt(); err == nil {
			r := uint64(ra)
			retryAfter = &r
		}
	}

	s.mu.Lock()
	rec, hasRecord := s.sendRecords[msgID]
	s.mu.Unlock()

	if hasRecord && retryAfter != nil && rec.attempts < s.cfg.RetryMaxAttempts {
		rec.attempts++
		attempt := rec.attempts
		if s.cfg.Observer != nil {
			s.cfg.Observer.RecordRetry(attempt)
		}
		go func() {
			time.Sleep(retryDelay(*retryAfter, s.cfg.RetryBaseMS, attempt))
			s.resend(msgID)
		}()
		return
	}

	s.mu.Lock()
	delete(s.sendRecords, msgID)
	waiter, hasWaiter := s.pending[msgID]
	s.mu.Unlock()
	if hasWaiter {
		select {
		case waiter <- responseOrErr{err: xcperrors.DeliveryFailed(fmt.Sprintf("nack error_code=%#x", int(codeVal)))}:
		default:
		}
	}
}

func (s *Session) handlePing(h frame.Header, payload []byte) {
	e, err := s.decodeJSONControl(payload)
	if err != nil {
		return
	}
	nonce, err := e.Payload["nonce"].AsString()
	if err != nil {
		return
	}
	pong := ether.New("pong", 1)
	pong.Payload["nonce"] = ether.String(nonce)
	go func() { _ = s.sendControl(xcpconst.MsgPong, pong, h.MsgID) }()
}

func (s *Session) handlePong(payload []byte) {
	e, err := s.decodeJSONControl(payload)
	if err != nil {
		return
	}
	nonce, err := e.Payload["nonce"].AsString()
	if err != nil {
		return
	}
	s.mu.Lock()
	ch, ok := s.pingWaiters[nonce]
	if ok {
		delete(s.pingWaiters, nonce)
	}
	s.mu.Unlock()
	if ok {
		select {
		case ch <- time.Now():
		default:
		}
	}
}

// handleData implements chunk reassembly, duplicate suppression, and
// automatic ACK/NACK for one data-bearing frame (spec §4.5, testable
// properties 6 and 8).
func (s *Session) handleData(h frame.Header, flags xcpconst.Flags, payload []byte) {
	if s.dup.Contains(h.MsgID) {
		if !flags.Has(xcpconst.FlagMORE) {
			s.emitAck(h.MsgID)
		}
		return
	}

	assembled, done, err := s.asm.Append(h.MsgID, h.ChannelID, h.BodyCodec, h.SchemaKey, payload, flags.Has(xcpconst.FlagMORE))
	if err != nil {
		s.emitNack(h.MsgID, xcperrors.ErrMessageTooLarge, nil)
		return
	}
	if !done {
		return
	}
	s.dup.Add(h.MsgID)

	c, ok := codec.Lookup(h.BodyCodec)
	if !ok {
		s.emitNack(h.MsgID, xcperrors.ErrCodecUnsupported, nil)
		return
	}
	e, err := c.Decode(assembled)
	if err != nil {
		s.emitNack(h.MsgID, xcperrors.ErrSchemaUnknown, nil)
		return
	}
	s.emitAck(h.MsgID)

	if h.InReplyTo != 0 {
		s.mu.Lock()
		waiter, ok := s.pending[h.InReplyTo]
		s.mu.Unlock()
		if ok {
			select {
			case waiter <- responseOrErr{ether: e}:
			default:
			}
			return
		}
	}

	if s.cfg.Handler != nil {
		go s.invokeHandler(h, e)
		return
	}

	select {
	case s.inbound <- &DataMessage{Header: h, Ether: e}:
	case <-s.closed:
	}
}

func (s *Session) emitAck(msgID uint64) {
	_ = s.Ack(msgID)
}

func (s *Session) invokeHandler(h frame.Header, e *ether.Ether) {
	resp, err := s.cfg.Handler(s, h, e)
	if err != nil || resp == nil {
		return
	}
	_, _ = s.Send(resp, SendOptions{ChannelID: h.ChannelID, InReplyTo: h.MsgID})
}

func (s *Session) decodeJSONControl(payload []byte) (*ether.Ether, error) {
	c, ok := codec.Lookup(xcpconst.CodecJSON)
	if !ok {
		return nil, fmt.Errorf("session: JSON codec not registered")
	}
	return c.Decode(payload)
}
