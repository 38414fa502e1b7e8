package cliadapter

import "github.com/ktagawa/agentq/internal/agent"

type ClaudeAdapter struct {
	bin string
}

func NewClaudeAdapter(bin string) *ClaudeAdapter {
	if bin == "" {
		bin = "claude"
	}
	return &ClaudeAdapter{bin: bin}
}

func (a *ClaudeAdapter) CLIType() agent.CLIType { return agent.CLITypeClaude }
func (a *ClaudeAdapter) BinaryPath() string     { return a.bin }
func (a *ClaudeAdapter) VersionArgs() []string  { return []string{"--version"} }

func (a *ClaudeAdapter) Invocation(prompt string) Invocation {
	return Invocation{
		Path:  a.bin,
		Args:  []string{"-p", "--output-format", "text"},
		Stdin: prompt,
	}
}
