package cliadapter

import "github.com/ktagawa/agentq/internal/agent"

type GeminiAdapter struct {
	bin string
}

func NewGeminiAdapter(bin string) *GeminiAdapter {
	if bin == "" {
		bin = "gemini"
	}
	return &GeminiAdapter{bin: bin}
}

func (a *GeminiAdapter) CLIType() agent.CLIType { return agent.CLITypeGemini }
func (a *GeminiAdapter) BinaryPath() string     { return a.bin }
func (a *GeminiAdapter) VersionArgs() []string  { return []string{"--version"} }

func (a *GeminiAdapter) Invocation(prompt string) Invocation {
	return Invocation{
		Path:  a.bin,
		Args:  []string{"-p", prompt},
		Stdin: "",
	}
}
