package sequencer

import (
	"fmt"
	"strings"

	"github.com/ktagawa/agentq/internal/agent"
	"github.com/ktagawa/agentq/internal/itemlog"
	"github.com/ktagawa/agentq/internal/workitem"
)

// maxHistoryEntries caps how much of the audit log is replayed into a
// prompt.
const maxHistoryEntries = 30

// buildPrompt renders the instruction, the work item, and recent activity
// into one headless prompt, ending with the result directive contract.
func buildPrompt(a *agent.Agent, item *workitem.WorkItem, history []*itemlog.Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are the %q agent working on a %s.\n\n", a.Name, item.Kind)
	if a.Instruction != "" {
		b.WriteString(a.Instruction)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Title: %s\n", item.Title)
	if item.Body != "" {
		fmt.Fprintf(&b, "\n%s\n", item.Body)
	}

	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}
	if len(history) > 0 {
		b.WriteString("\nRecent activity:\n")
		for _, e := range history {
			fmt.Fprintf(&b, "- [%s] %s\n", e.Kind, e.Message)
		}
	}

	b.WriteString("\nWork in the current directory. When you are finished, print exactly one final line:\n")
	b.WriteString("RESULT: continue      (you changed something and the next agent should run)\n")
	b.WriteString("RESULT: comment-only  (you only left commentary)\n")
	b.WriteString("RESULT: needs-review  (a human must look before anything else runs)\n")
	return b.String()
}
