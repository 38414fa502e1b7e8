package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktagawa/agentq/pkg/cerr"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentq.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseSeed(t *testing.T) {
	path := writeSeed(t, `
workspaces:
  - name: backend
    workingDirMode: temp
    autoDeleteDone: true
    retentionDays: 14
    notifyOnError: true
    agents:
      - name: planner
        instruction: "Plan the work."
        cli: claude
      - name: implementer
        instruction: "Do the work."
        cli: codex
`)
	seed, err := ParseSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Workspaces, 1)

	ws := seed.Workspaces[0]
	assert.Equal(t, "backend", ws.Name)
	assert.Equal(t, "temp", ws.WorkingDirMode)
	assert.True(t, ws.AutoDeleteDone)
	assert.Equal(t, 14, ws.RetentionDays)
	require.Len(t, ws.Agents, 2)
	assert.Equal(t, "planner", ws.Agents[0].Name)
	assert.Equal(t, "codex", ws.Agents[1].CLI)
}

func TestParseSeedRejectsStaticWithoutPath(t *testing.T) {
	path := writeSeed(t, `
workspaces:
  - name: backend
    workingDirMode: static
`)
	_, err := ParseSeed(path)
	require.Error(t, err)
	assert.Equal(t, cerr.InvalidArgument, cerr.CodeOf(err))
}

func TestParseSeedRejectsUnknownMode(t *testing.T) {
	path := writeSeed(t, `
workspaces:
  - name: backend
    workingDirMode: ephemeral
`)
	_, err := ParseSeed(path)
	require.Error(t, err)
	assert.Equal(t, cerr.InvalidArgument, cerr.CodeOf(err))
}

func TestParseSeedMissingFile(t *testing.T) {
	_, err := ParseSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, cerr.NotFound, cerr.CodeOf(err))
}
