package cliadapter

import "github.com/ktagawa/agentq/internal/agent"

type CodexAdapter struct {
	bin string
}

func NewCodexAdapter(bin string) *CodexAdapter {
	if bin == "" {
		bin = "codex"
	}
	return &CodexAdapter{bin: bin}
}

func (a *CodexAdapter) CLIType() agent.CLIType { return agent.CLITypeCodex }
func (a *CodexAdapter) BinaryPath() string     { return a.bin }
func (a *CodexAdapter) VersionArgs() []string  { return []string{"--version"} }

func (a *CodexAdapter) Invocation(prompt string) Invocation {
	// "-" makes codex exec read the prompt from stdin.
	return Invocation{
		Path:  a.bin,
		Args:  []string{"exec", "-"},
		Stdin: prompt,
	}
}
