package cliadapter

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ktagawa/agentq/internal/agent"
	"github.com/ktagawa/agentq/internal/config"
	"github.com/ktagawa/agentq/internal/runner"
	"github.com/ktagawa/agentq/pkg/cerr"
)

const detectTimeout = 10 * time.Second

// Detection is the probe result for one adapter.
type Detection struct {
	CLIType   agent.CLIType
	Binary    string
	Available bool
	Version   string
	Error     string
}

// Registry holds the configured adapters and probes their binaries.
type Registry struct {
	adapters map[agent.CLIType]Adapter
	runner   *runner.Runner
}

// NewRegistry wires the built-in adapters, honoring per-CLI binary overrides
// from the environment.
func NewRegistry(env *config.AdapterEnv, run *runner.Runner) *Registry {
	r := &Registry{
		adapters: make(map[agent.CLIType]Adapter),
		runner:   run,
	}
	for _, a := range []Adapter{
		NewClaudeAdapter(env.ClaudeBin),
		NewGeminiAdapter(env.GeminiBin),
		NewCodexAdapter(env.CodexBin),
		NewOpencodeAdapter(env.OpencodeBin),
	} {
		r.adapters[a.CLIType()] = a
	}
	return r
}

// Get returns the adapter for a CLI type.
func (r *Registry) Get(cliType agent.CLIType) (Adapter, error) {
	a, ok := r.adapters[cliType]
	if !ok {
		return nil, cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("unknown cli type %q", cliType), nil)
	}
	return a, nil
}

// Types lists the registered CLI types.
func (r *Registry) Types() []agent.CLIType {
	types := make([]agent.CLIType, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	return types
}

// Detect probes one adapter: the binary must resolve on PATH (or be an
// absolute override) and answer its version flag.
func (r *Registry) Detect(ctx context.Context, cliType agent.CLIType) Detection {
	det := Detection{CLIType: cliType}
	a, err := r.Get(cliType)
	if err != nil {
		det.Error = err.Error()
		return det
	}
	det.Binary = a.BinaryPath()

	path, err := exec.LookPath(a.BinaryPath())
	if err != nil {
		det.Error = fmt.Sprintf("binary not found: %v", err)
		return det
	}

	res, err := r.runner.Run(ctx, runner.Request{
		Path:    path,
		Args:    a.VersionArgs(),
		Timeout: detectTimeout,
	})
	if err != nil {
		det.Error = fmt.Sprintf("version probe failed: %v", err)
		return det
	}
	if res.ExitCode != 0 {
		det.Error = fmt.Sprintf("version probe exited %d", res.ExitCode)
		return det
	}

	det.Available = true
	det.Version = strings.TrimSpace(firstLine(res.Stdout))
	return det
}

// DetectAll probes every registered adapter.
func (r *Registry) DetectAll(ctx context.Context) []Detection {
	dets := make([]Detection, 0, len(r.adapters))
	for _, t := range []agent.CLIType{
		agent.CLITypeClaude, agent.CLITypeGemini,
		agent.CLITypeCodex, agent.CLITypeOpencode,
	} {
		dets = append(dets, r.Detect(ctx, t))
	}
	return dets
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
