package agent

import "time"

// CLIType names the CLI an agent runs through. The adapter registry resolves
// it to a concrete binary.
type CLIType string

const (
	CLITypeClaude   CLIType = "claude"
	CLITypeGemini   CLIType = "gemini"
	CLITypeCodex    CLIType = "codex"
	CLITypeOpencode CLIType = "opencode"
)

// Agent is one step in a workspace's ordered pipeline. Position is the sort
// key within the workspace; the sequencer walks agents in ascending position.
type Agent struct {
	ID          string
	WorkspaceID string
	Name        string
	Instruction string
	CLIType     CLIType
	Position    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
