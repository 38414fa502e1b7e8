package workdir

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/ktagawa/agentq/internal/workspace"
	"github.com/ktagawa/agentq/pkg/cerr"
)

// runDirPrefix names every scratch directory this manager creates. Deletion
// is refused for any path that does not carry it.
const runDirPrefix = "agentq-run-"

// Dir is a leased working directory for one pass.
type Dir struct {
	Path string
	// ephemeral marks directories the manager created and may delete.
	ephemeral bool
}

// Manager provisions and tears down per-pass working directories.
type Manager struct {
	scratchRoot string
	logger      *slog.Logger
}

func NewManager(scratchRoot string, logger *slog.Logger) (*Manager, error) {
	if scratchRoot == "" {
		scratchRoot = os.TempDir()
	}
	abs, err := filepath.Abs(scratchRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve scratch root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	return &Manager{scratchRoot: abs, logger: logger}, nil
}

// Acquire returns the directory for a pass. Temp mode creates a fresh
// directory under the scratch root; static mode hands out the configured
// path, which must already exist.
func (m *Manager) Acquire(ws *workspace.Workspace) (*Dir, error) {
	switch ws.WorkingDirMode {
	case workspace.ModeStatic:
		info, err := os.Stat(ws.WorkingDirPath)
		if err != nil {
			return nil, cerr.NewError(cerr.FailedPrecondition,
				fmt.Sprintf("static working dir %s is not usable", ws.WorkingDirPath), err)
		}
		if !info.IsDir() {
			return nil, cerr.NewError(cerr.FailedPrecondition,
				fmt.Sprintf("static working dir %s is not a directory", ws.WorkingDirPath), nil)
		}
		return &Dir{Path: ws.WorkingDirPath}, nil
	case workspace.ModeTemp, "":
		path := filepath.Join(m.scratchRoot, runDirPrefix+ulid.Make().String())
		if err := os.Mkdir(path, 0o755); err != nil {
			return nil, fmt.Errorf("create run dir: %w", err)
		}
		return &Dir{Path: path, ephemeral: true}, nil
	default:
		return nil, cerr.NewError(cerr.InvalidArgument,
			fmt.Sprintf("unknown working dir mode %q", ws.WorkingDirMode), nil)
	}
}

// Release tears the directory down. Static directories are never touched.
// Ephemeral ones are removed asynchronously and best-effort; a second
// Release on the same Dir is a no-op.
func (m *Manager) Release(dir *Dir) {
	if dir == nil || !dir.ephemeral {
		return
	}
	path := dir.Path
	dir.ephemeral = false

	if !m.deletable(path) {
		m.logger.Error("refusing to delete path outside scratch root",
			slog.String("path", path))
		return
	}
	go func() {
		if err := os.RemoveAll(path); err != nil {
			m.logger.Warn("failed to remove run dir",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
	}()
}

// deletable is the safety predicate: only direct children of the scratch
// root whose base name carries the run prefix are ever removed.
func (m *Manager) deletable(path string) bool {
	if filepath.Dir(path) != m.scratchRoot {
		return false
	}
	return strings.HasPrefix(filepath.Base(path), runDirPrefix)
}
