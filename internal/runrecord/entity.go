package runrecord

import "time"

// Outcome classifies how a single agent invocation ended.
type Outcome string

const (
	// OutcomeContinue means the agent made changes and the pipeline should
	// move to the next agent.
	OutcomeContinue Outcome = "continue"
	// OutcomeCommentOnly means the agent only left commentary. The pipeline
	// still advances.
	OutcomeCommentOnly Outcome = "comment_only"
	// OutcomeNeedsReview means the agent asked for human attention; the
	// pipeline stops early.
	OutcomeNeedsReview Outcome = "needs_review"
	// OutcomeError covers process failures, non-zero exits, and timeouts.
	OutcomeError Outcome = "error"
	// OutcomeCancelled is recorded when a run is force-terminated.
	OutcomeCancelled Outcome = "cancelled"
)

// Advances reports whether the pipeline should move past the agent that
// produced this outcome.
func (o Outcome) Advances() bool {
	return o == OutcomeContinue || o == OutcomeCommentOnly
}

// RunRecord is the audit trail of one agent invocation. AgentID is nil for
// pass-level records such as the no-agents fast path.
type RunRecord struct {
	ID           string
	WorkItemID   string
	AgentID      *string
	WorkingDir   string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Outcome      Outcome
	RawOutput    string
	ErrorMessage string
	Archived     bool
}

// Open reports whether the run has not finished yet.
func (r *RunRecord) Open() bool {
	return r.FinishedAt == nil
}
