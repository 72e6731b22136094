package engine_test

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/lacquerai/engine/internal/testhelper"
	"github.com/lacquerai/engine/pkg/engine"
)

// helperProcessEnv makes the test binary serve the protocol, so Start
// has an engine process to launch.
const helperProcessEnv = "ENGINE_PKG_HELPER_PROCESS"

func TestMain(m *testing.M) {
	if os.Getenv(helperProcessEnv) == "1" {
		if err := engine.Serve(context.Background(), os.Stdin, os.Stdout, engine.WithReady(true)); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	os.Exit(m.Run())
}

func TestServeAndConnect(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		err := engine.Serve(context.Background(), inR, outW)
		outW.Close()
		done <- err
	}()

	conn := engine.Connect(inW, outR)
	ctx := context.Background()

	resp, err := conn.Send(ctx, "ping")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusOK, resp.Status)
	assert.Equal(t, "ping", resp.Command)
	assert.Equal(t, engine.Greeting, resp.Data)

	resp, err = conn.SendLine(ctx, "not json")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusError, resp.Status)
	assert.NotEmpty(t, resp.Error)

	require.NoError(t, conn.Close())
	require.NoError(t, <-done)
}

func TestStart_MissingBinary(t *testing.T) {
	_, err := engine.Start(context.Background(), "/nonexistent/engine")
	assert.Error(t, err)
}

func TestStart_OutlivesStartupContext(t *testing.T) {
	t.Setenv(helperProcessEnv, "1")

	exe, err := os.Executable()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := engine.Start(ctx, exe)
	require.NoError(t, err)
	cancel()

	resp, err := conn.Send(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusOK, resp.Status)
	assert.Equal(t, "ping", resp.Command)

	require.NoError(t, conn.Close())
}
