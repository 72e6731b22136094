package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lacquerai/engine/internal/protocol"
)

var (
	// ErrClosed is returned once the client is closed or the engine has
	// closed its output.
	ErrClosed = errors.New("engine connection closed")

	// ErrMultiline is returned for raw requests spanning several lines,
	// which would desynchronise request and response pairing.
	ErrMultiline = errors.New("request must fit on a single line")

	// ErrNotReady is returned when the first line is not a ready notice.
	ErrNotReady = errors.New("engine did not report ready")
)

// Client talks to an engine over a pair of streams. Requests are sent
// one at a time and each is paired with the next response line.
type Client struct {
	mu     sync.Mutex
	w      io.WriteCloser
	r      *bufio.Reader
	cmd    *exec.Cmd
	logger zerolog.Logger

	// err is set once the stream can no longer be trusted
	err error

	// pending holds a read abandoned by a cancelled context
	pending <-chan readResult
}

type readResult struct {
	line []byte
	err  error
}

// New wraps an engine's input (w) and output (r).
func New(w io.WriteCloser, r io.Reader) *Client {
	return &Client{
		w:      w,
		r:      bufio.NewReader(r),
		logger: log.With().Str("component", "client").Logger(),
	}
}

// Spawn starts the engine binary at path as a child process and
// connects to its stdin and stdout. The child's stderr is forwarded.
//
// The child is bound to ctx: it is killed when ctx is done, so ctx must
// outlive every request sent to it.
func Spawn(ctx context.Context, path string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine %s: %w", path, err)
	}

	c := New(stdin, stdout)
	c.cmd = cmd
	c.logger = c.logger.With().Int("pid", cmd.Process.Pid).Logger()
	c.logger.Debug().Str("path", path).Strs("args", args).Msg("Engine started")

	return c, nil
}

// WaitReady consumes the ready notice written by an engine started
// with --ready.
func (c *Client) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, err := c.readResponse(ctx)
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusReady {
		return fmt.Errorf("%w: got status %q", ErrNotReady, resp.Status)
	}
	return nil
}

// Send asks the engine to echo command. A nil command sends {}.
func (c *Client) Send(ctx context.Context, command any) (protocol.Response, error) {
	line, err := protocol.EncodeRequest(protocol.Request{Command: command})
	if err != nil {
		return protocol.Response{}, err
	}
	return c.SendRaw(ctx, line)
}

// SendRaw writes line verbatim and returns the engine's response. The
// line need not be valid JSON; the engine answers malformed input with
// an error response.
func (c *Client) SendRaw(ctx context.Context, line []byte) (protocol.Response, error) {
	line = bytes.TrimSuffix(line, []byte("\n"))
	if bytes.IndexByte(line, '\n') >= 0 {
		return protocol.Response{}, ErrMultiline
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return protocol.Response{}, c.err
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')
	if _, err := c.w.Write(buf); err != nil {
		c.err = fmt.Errorf("%w: %v", ErrClosed, err)
		return protocol.Response{}, fmt.Errorf("failed to write request: %w", err)
	}

	return c.readResponse(ctx)
}

// readResponse reads the next response line. If ctx ends first the
// pending line is abandoned and the client is marked unusable, since a
// later call would receive the stale response.
func (c *Client) readResponse(ctx context.Context) (protocol.Response, error) {
	if c.err != nil {
		return protocol.Response{}, c.err
	}

	ch := make(chan readResult, 1)
	go func() {
		line, err := c.r.ReadBytes('\n')
		ch <- readResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		c.err = fmt.Errorf("%w: abandoned a pending response: %v", ErrClosed, ctx.Err())
		c.pending = ch
		return protocol.Response{}, ctx.Err()
	case res := <-ch:
		if len(res.line) == 0 && res.err != nil {
			if errors.Is(res.err, io.EOF) {
				c.err = ErrClosed
				return protocol.Response{}, ErrClosed
			}
			c.err = fmt.Errorf("%w: %v", ErrClosed, res.err)
			return protocol.Response{}, fmt.Errorf("failed to read response: %w", res.err)
		}

		resp, err := protocol.ParseResponse(res.line)
		if err != nil {
			return protocol.Response{}, err
		}

		event := c.logger.Debug().
			Str("status", string(resp.Status)).
			Interface("command", resp.Command)
		if resp.Status == protocol.StatusOK {
			event = event.Time("timestamp", resp.Time())
		}
		event.Msg("Response received")

		return resp, nil
	}
}

// Close closes the engine's input, which ends its loop, and waits for
// a spawned child to exit. A read abandoned by a cancelled request is
// drained first; it ends once the engine closes its output.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err == nil {
		c.err = ErrClosed
	}

	closeErr := c.w.Close()

	// exec.Cmd.Wait must not run while a read from its stdout is in flight
	if c.pending != nil {
		<-c.pending
		c.pending = nil
	}

	if c.cmd == nil {
		return closeErr
	}

	if err := c.cmd.Wait(); err != nil {
		return fmt.Errorf("engine exited with error: %w", err)
	}
	c.logger.Debug().Msg("Engine exited")
	return nil
}
