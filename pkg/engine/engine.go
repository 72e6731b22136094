// Package engine provides a public API for embedding the line-delimited
// JSON engine in another Go program, or for driving an engine process
// from one.
//
// The protocol is one JSON object per line in each direction. Every
// input line is answered by exactly one output line, in order:
//
//	{"command": "ping"}
//	{"status":"ok","command":"ping","timestamp":1700000000.25,"data":"Python Engine says: Hello from the backend!"}
//
// Lines that cannot be decoded are answered with an error response and
// the engine keeps serving:
//
//	not json
//	{"status":"error","error":"invalid JSON: invalid character 'o' in literal null (expecting 'u')"}
//
// Example usage:
//
//	// Serve the protocol on the process streams
//	if err := engine.Serve(ctx, os.Stdin, os.Stdout); err != nil {
//		log.Fatal(err)
//	}
//
//	// Drive an engine binary from a host program
//	conn, err := engine.Start(ctx, "./bin/engine")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer conn.Close()
//
//	resp, err := conn.Send(ctx, "ping")
package engine

import (
	"context"
	"io"

	"github.com/lacquerai/engine/internal/client"
	"github.com/lacquerai/engine/internal/engine"
	"github.com/lacquerai/engine/internal/protocol"
)

// Response is a single line written by an engine.
type Response = protocol.Response

// Response statuses.
const (
	StatusOK    = protocol.StatusOK
	StatusError = protocol.StatusError
	StatusReady = protocol.StatusReady
)

// Greeting is the data carried by every successful response.
const Greeting = protocol.Greeting

// Option represents a functional option for configuring an embedded
// engine.
type Option = engine.Option

// WithReady makes the engine write {"status":"ready"} before reading
// any input, so a host can tell when it is accepting requests.
func WithReady(ready bool) Option {
	return engine.WithReady(ready)
}

// Serve answers every line read from in on out until in is exhausted or
// ctx is cancelled.
//
// Decode failures never stop the engine; they are answered with an error
// response. Errors reading in or writing out do stop it and are
// returned, since the host can no longer be reached reliably.
func Serve(ctx context.Context, in io.Reader, out io.Writer, options ...Option) error {
	return engine.New(options...).Run(ctx, in, out)
}

// Conn is a connection to an engine process. It is safe for concurrent
// use; requests are sent one at a time.
type Conn struct {
	client *client.Client

	// stop kills a started process; nil for Connect
	stop context.CancelFunc
}

// Start launches the engine binary at path with --ready, waits for it to
// report ready and returns a connection to it. Extra args are passed to
// the binary after --ready.
//
// ctx bounds startup only. Once Start returns, the process runs until
// Close, even if ctx is cancelled.
func Start(ctx context.Context, path string, args ...string) (*Conn, error) {
	procCtx, stop := context.WithCancel(context.WithoutCancel(ctx))

	c, err := client.Spawn(procCtx, path, append([]string{"--ready"}, args...)...)
	if err != nil {
		stop()
		return nil, err
	}

	if err := c.WaitReady(ctx); err != nil {
		stop()
		_ = c.Close()
		return nil, err
	}

	return &Conn{client: c, stop: stop}, nil
}

// Connect wraps an engine already running behind w (its input) and r
// (its output). No ready notice is expected.
func Connect(w io.WriteCloser, r io.Reader) *Conn {
	return &Conn{client: client.New(w, r)}
}

// Send asks the engine to echo command and returns its response.
func (c *Conn) Send(ctx context.Context, command any) (Response, error) {
	return c.client.Send(ctx, command)
}

// SendLine writes line verbatim, which need not be valid JSON, and
// returns the engine's response.
func (c *Conn) SendLine(ctx context.Context, line string) (Response, error) {
	return c.client.SendRaw(ctx, []byte(line))
}

// Close ends the engine's input and, for a started process, waits for it
// to exit.
func (c *Conn) Close() error {
	err := c.client.Close()
	if c.stop != nil {
		c.stop()
	}
	return err
}
