// Package pkg has no exported API of its own; it groups the packages
// that implement the eXtensible Coordination Protocol.
//
// # Wire path
//
// A message enters as an ether.Ether envelope. pkg/session picks a
// negotiated codec from pkg/codec (json, binary_struct, or one of the
// tensor/dlpack codecs under pkg/codec/tensor and pkg/codec/dlpack),
// applies the pkg/transform pipeline (zstd compression, then
// ChaCha20-Poly1305 sealing) if the session negotiated either, and
// hands the result to pkg/frame to pack a wire frame. Large payloads
// are chunked across several frames and reassembled on the far side.
// pkg/shm provides the shm:// URI form and an in-process store for
// attachments published out of band; pkg/session does not move
// attachments into it on its own.
//
// # Building a client or server
//
//	import (
//	    "context"
//	    "github.com/xcp-project/xcp/pkg/xcpclient"
//	)
//
//	func main() {
//	    client, err := xcpclient.Dial(conn,
//	        xcpclient.WithName("my-client"),
//	        xcpclient.WithCompression(true),
//	    )
//	    if err != nil {
//	        // handle error
//	    }
//	    defer client.Close()
//
//	    ctx := context.Background()
//	    reply, err := client.RequestText(ctx, "ping")
//	    // ...
//	}
//
// pkg/xcpserver mirrors this on the accept side, managing one
// pkg/session.Session per accepted connection.
//
// # Sub-packages
//
//   - session: the handshake, codec negotiation, and reliability engine
//   - frame: fixed wire preamble and chunk framing
//   - ether: the self-describing envelope and its typed values
//   - codec, codec/tensor, codec/dlpack: the codec registry and its built-ins
//   - transform: compression and AEAD sealing applied to a frame's body
//   - schema: the SchemaKey composite identity carried in every frame header
//   - shm: shm:// attachment URIs and an in-process backing store
//   - xcpconfig: TOML-loadable session configuration
//   - xcpclient, xcpserver: thin facades over pkg/session
//   - xcplog: structured logging used by xcpclient and xcpserver
//   - xcperrors: the protocol's structured error codes
//   - observability: Prometheus metrics and OpenTelemetry tracing
//   - utils: small utilities, such as goroutine leak detection in tests
package pkg
