// Command xcp-bench is a minimal harness that opens a client and a server
// session over an in-memory pipe and round-trips a handful of text
// requests through it, printing per-request latency. It exists as ambient
// test tooling exercising pkg/xcpclient and pkg/xcpserver end to end, not
// as a full benchmark suite (the teacher's closest analogue is its
// examples/<name>/main.go demo programs; this repo groups such entry
// points under cmd/, following the layout of the rest of the corpus's
// CLI-carrying repos).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xcp-project/xcp/pkg/xcpclient"
	"github.com/xcp-project/xcp/pkg/xcpconfig"
	"github.com/xcp-project/xcp/pkg/xcplog"
	"github.com/xcp-project/xcp/pkg/xcpserver"
)

// pipeConn joins two io.Pipe halves into a single io.ReadWriteCloser, the
// same cross-wiring idiom pkg/session and pkg/xcpclient's tests use to
// exercise a full session without a real transport.
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p pipeConn) Close() error {
	_ = p.r.Close()
	return p.w.Close()
}

func newPipePair() (pipeConn, pipeConn) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	return pipeConn{r: r1, w: w2}, pipeConn{r: r2, w: w1}
}

func main() {
	var (
		configPath string
		count      int
		message    string
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "xcp-bench",
		Short: "Round-trip requests through a client and server session over an in-memory pipe",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, count, message, verbose)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file (see pkg/xcpconfig)")
	root.Flags().IntVarP(&count, "count", "n", 5, "number of requests to send")
	root.Flags().StringVarP(&message, "message", "m", "ping", "text payload to send with each request")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "log session lifecycle events")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, count int, message string, verbose bool) error {
	var logger xcplog.Logger = xcplog.Nop()
	if verbose {
		logger = xcplog.New(os.Stderr)
	}

	clientConn, serverConn := newPipePair()
	defer clientConn.Close()
	defer serverConn.Close()

	srv := xcpserver.New(
		xcpserver.WithName("xcp-bench-server"),
		xcpserver.WithLogger(logger),
	)
	defer srv.Close()

	serverReady := make(chan error, 1)
	go func() {
		_, err := srv.Serve(serverConn)
		serverReady <- err
	}()

	clientOpts := []xcpclient.Option{
		xcpclient.WithName("xcp-bench-client"),
		xcpclient.WithLogger(logger),
	}
	if configPath != "" {
		fileCfg, err := xcpconfig.Load(configPath)
		if err != nil {
			return fmt.Errorf("xcp-bench: loading config: %w", err)
		}
		clientOpts = append(clientOpts,
			xcpclient.WithMaxFrameBytes(fileCfg.MaxFrameBytes),
			xcpclient.WithCodecPolicy(fileCfg.CodecPolicy),
			xcpclient.WithCompression(fileCfg.Compression),
			xcpclient.WithSharedMem(fileCfg.SharedMem),
		)
		if fileCfg.AEADStaticKey != nil {
			clientOpts = append(clientOpts, xcpclient.WithAEADKey(fileCfg.AEADStaticKey))
		}
	}

	client, err := xcpclient.Dial(clientConn, clientOpts...)
	if err != nil {
		return fmt.Errorf("xcp-bench: dial: %w", err)
	}
	defer client.Close()

	if err := <-serverReady; err != nil {
		return fmt.Errorf("xcp-bench: serve: %w", err)
	}

	var total time.Duration
	for i := 0; i < count; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		start := time.Now()
		reply, err := client.RequestText(reqCtx, fmt.Sprintf("%s #%d", message, i+1))
		elapsed := time.Since(start)
		cancel()
		if err != nil {
			return fmt.Errorf("xcp-bench: request %d: %w", i+1, err)
		}
		total += elapsed
		fmt.Printf("request %d: %q -> %q (%s)\n", i+1, message, reply, elapsed)
	}

	if count > 0 {
		fmt.Printf("average latency: %s\n", total/time.Duration(count))
	}
	return nil
}
