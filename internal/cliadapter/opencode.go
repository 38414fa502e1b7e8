package cliadapter

import "github.com/ktagawa/agentq/internal/agent"

type OpencodeAdapter struct {
	bin string
}

func NewOpencodeAdapter(bin string) *OpencodeAdapter {
	if bin == "" {
		bin = "opencode"
	}
	return &OpencodeAdapter{bin: bin}
}

func (a *OpencodeAdapter) CLIType() agent.CLIType { return agent.CLITypeOpencode }
func (a *OpencodeAdapter) BinaryPath() string     { return a.bin }
func (a *OpencodeAdapter) VersionArgs() []string  { return []string{"--version"} }

func (a *OpencodeAdapter) Invocation(prompt string) Invocation {
	return Invocation{
		Path: a.bin,
		Args: []string{"run", prompt},
	}
}
