package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcp-project/xcp/pkg/ether"
	"github.com/xcp-project/xcp/pkg/frame"
	"github.com/xcp-project/xcp/pkg/utils"
	"github.com/xcp-project/xcp/pkg/xcpconst"
	"github.com/xcp-project/xcp/pkg/xcperrors"
)

// pipeConn wires two io.Pipe() halves into a single full-duplex
// io.ReadWriteCloser, the same cross-wiring idiom the teacher's transport
// tests use to connect a client and server without a real socket
// (pkg/transport/stdio_test.go, goroutine_leak_test.go).
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (c *pipeConn) Read(p []byte) (int, error)  { return c.r.Read(p) }
func (c *pipeConn) Write(p []byte) (int, error) { return c.w.Write(p) }
func (c *pipeConn) Close() error {
	_ = c.r.Close()
	return c.w.Close()
}

func newPipePair() (*pipeConn, *pipeConn) {
	ar, aw := io.Pipe()
	br, bw := io.Pipe()
	return &pipeConn{r: ar, w: bw}, &pipeConn{r: br, w: aw}
}

func openPair(t *testing.T, clientCfg, serverCfg Config) (*Session, *Session) {
	t.Helper()
	clientConn, serverConn := newPipePair()

	var client *Session
	var clientErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		client, clientErr = OpenClient(clientConn, clientCfg)
	}()

	server, serverErr := OpenServer(serverConn, serverCfg)
	require.NoError(t, serverErr)
	<-done
	require.NoError(t, clientErr)

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestHandshakeNegotiatesSharedCodecs(t *testing.T) {
	client, server := openPair(t, DefaultConfig(), DefaultConfig())

	require.Equal(t, StateOpen, client.State())
	require.Equal(t, StateOpen, server.State())

	// Both sides only ever registered JSON and BINARY_STRUCT in this test
	// binary (session_test.go never blank-imports the optional codecs), so
	// negotiation must not invent codecs neither side advertised (spec §8
	// property 9: negotiation minimality).
	assert.True(t, client.neg.codecs[xcpconst.CodecJSON])
	assert.True(t, client.neg.codecs[xcpconst.CodecBinaryStruct])
	assert.Equal(t, len(client.neg.codecs), len(server.neg.codecs))
	for id := range client.neg.codecs {
		assert.True(t, server.neg.codecs[id], "server missing negotiated codec %s", id)
	}
}

func TestSendRecvRoundTrip(t *testing.T) {
	client, server := openPair(t, DefaultConfig(), DefaultConfig())

	e := ether.NewText("hello xcp")
	_, err := client.Send(e, SendOptions{ChannelID: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := server.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, "text", msg.Ether.Kind)
	text, err := msg.Ether.Payload["text"].AsString()
	require.NoError(t, err)
	assert.Equal(t, "hello xcp", text)
}

func TestRequestResponseRoundTrip(t *testing.T) {
	serverCfg := DefaultConfig()
	serverCfg.Handler = func(s *Session, h frame.Header, e *ether.Ether) (*ether.Ether, error) {
		text, _ := e.Payload["text"].AsString()
		return ether.NewText("echo:" + text), nil
	}
	client, _ := openPair(t, DefaultConfig(), serverCfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Request(ctx, ether.NewText("ping"), SendOptions{})
	require.NoError(t, err)
	text, err := resp.Payload["text"].AsString()
	require.NoError(t, err)
	assert.Equal(t, "echo:ping", text)
}

func TestChunkedReassemblyDeliversOnce(t *testing.T) {
	clientCfg := DefaultConfig()
	clientCfg.MaxFrameBytes = 8
	serverCfg := DefaultConfig()

	var mu sync.Mutex
	var deliveries int
	serverCfg.Handler = func(s *Session, h frame.Header, e *ether.Ether) (*ether.Ether, error) {
		mu.Lock()
		deliveries++
		mu.Unlock()
		return nil, nil
	}

	client, _ := openPair(t, clientCfg, serverCfg)

	long := ether.NewText("this payload is longer than eight bytes per chunk")
	_, err := client.Send(long, SendOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return deliveries == 1
	}, 2*time.Second, 10*time.Millisecond, "message should be delivered exactly once after reassembly")
}

// TestDeliveryFailedAfterRetryExhaustion drives the NACK path directly
// against a Session's exported Request/Recv/Nack surface rather than
// racing a second goroutine for the allocated msg_id: the header the
// server's Recv returns already carries the id needed to NACK it back.
func TestDeliveryFailedAfterRetryExhaustion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryMaxAttempts = 0
	client, server := openPair(t, cfg, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		_, err := client.Request(ctx, ether.NewText("will be rejected"), SendOptions{})
		resultCh <- err
	}()

	dm, recvErr := server.Recv(ctx)
	require.NoError(t, recvErr)
	require.NotNil(t, dm)

	retryAfter := uint64(10)
	require.NoError(t, server.Nack(dm.Header.MsgID, xcperrors.ErrMessageTooLarge, &retryAfter))

	select {
	case err := <-resultCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("request never resolved after NACK with retries exhausted")
	}
}

func TestPingPong(t *testing.T) {
	client, _ := openPair(t, DefaultConfig(), DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rtt, err := client.Ping(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rtt, time.Duration(0))
}

func TestCloseIsIdempotentAndCancelsPendingRequests(t *testing.T) {
	client, server := openPair(t, DefaultConfig(), DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reqErrCh := make(chan error, 1)
	go func() {
		_, err := client.Request(ctx, ether.NewText("hang"), SendOptions{})
		reqErrCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close()) // idempotent

	select {
	case err := <-reqErrCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request never resolved after Close")
	}

	_ = server.Close()
}

func TestDupWindow(t *testing.T) {
	w := newDupWindow(2)
	assert.False(t, w.Contains(1))
	w.Add(1)
	assert.True(t, w.Contains(1))
	w.Add(2)
	w.Add(3) // evicts 1
	assert.False(t, w.Contains(1))
	assert.True(t, w.Contains(2))
	assert.True(t, w.Contains(3))
}

func TestRetryDelayRespectsFloor(t *testing.T) {
	for attempt := 0; attempt < 8; attempt++ {
		d := retryDelay(10, 50, attempt)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
	}
}

func TestOpenAndCloseDoesNotLeakGoroutines(t *testing.T) {
	detector := utils.NewGoroutineLeakDetector(t)
	detector.Start()

	client, server := openPair(t, DefaultConfig(), DefaultConfig())
	require.NoError(t, client.Close())
	require.NoError(t, server.Close())
	require.NoError(t, client.Wait())
	require.NoError(t, server.Wait())

	detector.Check()
}
