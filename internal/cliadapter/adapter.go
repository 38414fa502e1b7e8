package cliadapter

import (
	"strings"

	"github.com/ktagawa/agentq/internal/agent"
	"github.com/ktagawa/agentq/internal/runrecord"
)

// Invocation is a ready-to-run CLI command for one agent prompt.
type Invocation struct {
	Path  string
	Args  []string
	Env   []string
	Stdin string
}

// Adapter translates between the engine and one agent CLI: it knows the
// binary, how to hand it a prompt non-interactively, and how to probe it.
type Adapter interface {
	CLIType() agent.CLIType
	BinaryPath() string
	// Invocation builds the command for a single headless prompt run.
	Invocation(prompt string) Invocation
	// VersionArgs returns the argv used to probe the installed binary.
	VersionArgs() []string
}

// resultPrefix is the directive agents are instructed to print as their last
// output line to classify their own run.
const resultPrefix = "RESULT:"

// ParseOutcome scans stdout bottom-up for the trailing result directive. The
// bool reports whether a directive was found; without one a clean exit is
// treated as a plain continue.
func ParseOutcome(stdout string) (runrecord.Outcome, bool) {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, resultPrefix) {
			return runrecord.OutcomeContinue, false
		}
		verdict := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, resultPrefix)))
		switch verdict {
		case "continue":
			return runrecord.OutcomeContinue, true
		case "comment-only", "comment_only":
			return runrecord.OutcomeCommentOnly, true
		case "needs-review", "needs_review":
			return runrecord.OutcomeNeedsReview, true
		default:
			return runrecord.OutcomeContinue, false
		}
	}
	return runrecord.OutcomeContinue, false
}
