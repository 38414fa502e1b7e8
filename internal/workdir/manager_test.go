package workdir

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktagawa/agentq/internal/workspace"
	"github.com/ktagawa/agentq/pkg/cerr"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return m
}

func waitGone(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("path %s still exists", path)
}

func TestAcquireTempCreatesFreshDir(t *testing.T) {
	m := testManager(t)
	ws := &workspace.Workspace{WorkingDirMode: workspace.ModeTemp}

	d1, err := m.Acquire(ws)
	require.NoError(t, err)
	d2, err := m.Acquire(ws)
	require.NoError(t, err)

	assert.NotEqual(t, d1.Path, d2.Path)
	assert.True(t, strings.HasPrefix(filepath.Base(d1.Path), runDirPrefix))
	info, err := os.Stat(d1.Path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestReleaseTempDeletesDir(t *testing.T) {
	m := testManager(t)
	d, err := m.Acquire(&workspace.Workspace{WorkingDirMode: workspace.ModeTemp})
	require.NoError(t, err)

	// Leftover files must not block cleanup.
	require.NoError(t, os.WriteFile(filepath.Join(d.Path, "out.txt"), []byte("x"), 0o644))

	m.Release(d)
	waitGone(t, d.Path)

	// Second release is a no-op.
	m.Release(d)
}

func TestReleaseStaticNeverDeletes(t *testing.T) {
	m := testManager(t)
	static := t.TempDir()
	d, err := m.Acquire(&workspace.Workspace{
		WorkingDirMode: workspace.ModeStatic,
		WorkingDirPath: static,
	})
	require.NoError(t, err)
	assert.Equal(t, static, d.Path)

	m.Release(d)
	time.Sleep(50 * time.Millisecond)
	_, err = os.Stat(static)
	assert.NoError(t, err)
}

func TestAcquireStaticRequiresExistingDir(t *testing.T) {
	m := testManager(t)
	_, err := m.Acquire(&workspace.Workspace{
		WorkingDirMode: workspace.ModeStatic,
		WorkingDirPath: filepath.Join(t.TempDir(), "missing"),
	})
	require.Error(t, err)
	assert.Equal(t, cerr.FailedPrecondition, cerr.CodeOf(err))
}

func TestDeletableRejectsForeignPaths(t *testing.T) {
	m := testManager(t)

	assert.False(t, m.deletable("/etc"))
	assert.False(t, m.deletable(filepath.Join(m.scratchRoot, "not-a-run-dir")))
	assert.False(t, m.deletable(filepath.Join(m.scratchRoot, "nested", runDirPrefix+"x")))
	assert.True(t, m.deletable(filepath.Join(m.scratchRoot, runDirPrefix+"01ABC")))
}

func TestAcquireUnknownMode(t *testing.T) {
	m := testManager(t)
	_, err := m.Acquire(&workspace.Workspace{WorkingDirMode: "ephemeral"})
	require.Error(t, err)
	assert.Equal(t, cerr.InvalidArgument, cerr.CodeOf(err))
}
