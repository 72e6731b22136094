package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacquerai/engine/internal/engine"
	"github.com/lacquerai/engine/internal/protocol"
	_ "github.com/lacquerai/engine/internal/testhelper"
)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

// startEngine runs an in-process engine behind a pair of pipes
func startEngine(t *testing.T, opts ...engine.Option) (*Client, <-chan error) {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		err := engine.New(opts...).Run(context.Background(), inR, outW)
		outW.Close()
		done <- err
	}()

	return New(inW, outR), done
}

func TestSend(t *testing.T) {
	c, done := startEngine(t)

	resp, err := c.Send(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)
	assert.Equal(t, "ping", resp.Command)
	assert.Equal(t, protocol.Greeting, resp.Data)
	assert.Greater(t, resp.Timestamp, 0.0)

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
}

func TestSend_NilCommand(t *testing.T) {
	c, done := startEngine(t)

	resp, err := c.Send(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)
	assert.Nil(t, resp.Command)

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
}

func TestSend_PairsInOrder(t *testing.T) {
	c, done := startEngine(t)
	ctx := context.Background()

	var last float64
	for i := 0; i < 25; i++ {
		want := fmt.Sprintf("cmd-%d", i)
		resp, err := c.Send(ctx, want)
		require.NoError(t, err)
		assert.Equal(t, want, resp.Command)
		assert.GreaterOrEqual(t, resp.Timestamp, last)
		last = resp.Timestamp
	}

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
}

func TestSend_Concurrent(t *testing.T) {
	c, done := startEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("worker-%d", i)
			resp, err := c.Send(ctx, want)
			assert.NoError(t, err)
			assert.Equal(t, want, resp.Command)
		}(i)
	}
	wg.Wait()

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
}

func TestSendRaw_Malformed(t *testing.T) {
	c, done := startEngine(t)
	ctx := context.Background()

	resp, err := c.SendRaw(ctx, []byte("not json"))
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.NotEmpty(t, resp.Error)

	// The engine keeps serving after a failure.
	resp, err = c.SendRaw(ctx, []byte(`{"command": "after"}`+"\n"))
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)
	assert.Equal(t, "after", resp.Command)

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
}

func TestSendRaw_Multiline(t *testing.T) {
	c, done := startEngine(t)

	_, err := c.SendRaw(context.Background(), []byte("{}\n{}"))
	assert.ErrorIs(t, err, ErrMultiline)

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
}

func TestWaitReady(t *testing.T) {
	c, done := startEngine(t, engine.WithReady(true))
	ctx := context.Background()

	require.NoError(t, c.WaitReady(ctx))

	resp, err := c.Send(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", resp.Command)

	require.NoError(t, c.Close())
	require.NoError(t, <-done)
}

func TestWaitReady_NotReady(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	defer inR.Close()

	go func() {
		fmt.Fprintln(outW, `{"status":"ok","command":null,"timestamp":1,"data":"x"}`)
	}()

	c := New(inW, outR)
	err := c.WaitReady(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSend_ContextCancelled(t *testing.T) {
	inR, inW := io.Pipe()
	outR, _ := io.Pipe()

	// Drain requests but never answer.
	go func() { _, _ = io.Copy(io.Discard, inR) }()

	c := New(inW, outR)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, "ping")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The stream is out of step, so the client refuses further use.
	_, err = c.Send(context.Background(), "again")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSend_EngineClosedOutput(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	go func() { _, _ = io.Copy(io.Discard, inR) }()
	outW.Close()

	c := New(inW, outR)
	_, err := c.Send(context.Background(), "ping")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSend_AfterClose(t *testing.T) {
	c, done := startEngine(t)
	require.NoError(t, c.Close())
	require.NoError(t, <-done)

	_, err := c.Send(context.Background(), "ping")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSpawn_MissingBinary(t *testing.T) {
	_, err := Spawn(context.Background(), "/nonexistent/engine-binary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start engine")
}

func TestClose_DrainsAbandonedRead(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	go func() { _, _ = io.Copy(io.Discard, inR) }()

	c := New(inW, outR)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Send(ctx, "ping")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	closed := make(chan error, 1)
	go func() { closed <- c.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a read was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, outW.Close())

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the engine closed its output")
	}
}
