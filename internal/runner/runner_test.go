package runner

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunner() *Runner {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunCapturesOutput(t *testing.T) {
	res, err := testRunner().Run(context.Background(), Request{
		Path: "/bin/sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.False(t, res.TimedOut)
}

func TestRunReportsExitCode(t *testing.T) {
	res, err := testRunner().Run(context.Background(), Request{
		Path: "/bin/sh",
		Args: []string{"-c", "echo partial; exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "partial\n", res.Stdout)
}

func TestRunTimeoutKeepsPartialOutput(t *testing.T) {
	res, err := testRunner().Run(context.Background(), Request{
		Path:      "/bin/sh",
		Args:      []string{"-c", "echo before; sleep 30"},
		Timeout:   300 * time.Millisecond,
		KillGrace: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, "before\n", res.Stdout)
	assert.Less(t, res.Duration, 5*time.Second)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	res, err := testRunner().Run(ctx, Request{
		Path:      "/bin/sh",
		Args:      []string{"-c", "echo started; sleep 30"},
		KillGrace: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Equal(t, "started\n", res.Stdout)
}

func TestRunSpawnFailure(t *testing.T) {
	_, err := testRunner().Run(context.Background(), Request{
		Path: "/no/such/binary",
	})
	require.Error(t, err)
}

func TestRunPassesEnvAndDirAndStdin(t *testing.T) {
	dir := t.TempDir()
	res, err := testRunner().Run(context.Background(), Request{
		Path:  "/bin/sh",
		Args:  []string{"-c", "pwd; printf '%s\\n' \"$AGENTQ_TEST_VAR\"; cat"},
		Env:   []string{"AGENTQ_TEST_VAR=hello"},
		Dir:   dir,
		Stdin: "from stdin",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, dir)
	assert.Contains(t, res.Stdout, "hello")
	assert.Contains(t, res.Stdout, "from stdin")
}
