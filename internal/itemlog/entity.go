package itemlog

import "time"

// LogKind tags an entry with its origin.
type LogKind string

const (
	// KindStatus records a status transition.
	KindStatus LogKind = "status"
	// KindComment records a user comment appended to the item body.
	KindComment LogKind = "comment"
	// KindAgent records agent-level events (start, outcome, early exit).
	KindAgent LogKind = "agent"
	// KindSystem records engine actions (cancellation, cleanup, retention).
	KindSystem LogKind = "system"
)

// Entry is one append-only audit line for a work item. Entries are never
// updated or deleted while the item lives.
type Entry struct {
	ID         string
	WorkItemID string
	Kind       LogKind
	Message    string
	CreatedAt  time.Time
}
