package workitem

import "time"

// Kind discriminates the two work item variants. Tasks and chats share one
// lifecycle but carry different status sets.
type Kind string

const (
	KindTask Kind = "task"
	KindChat Kind = "chat"
)

// Status represents a work item status. Task statuses and chat statuses are
// disjoint except for in_progress, which both kinds pass through while an
// agent pass is running.
type Status string

const (
	// Task statuses
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusDone       Status = "done"

	// Chat statuses
	StatusIdle      Status = "idle"
	StatusQueued    Status = "queued"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

type WorkItem struct {
	ID          string
	WorkspaceID string
	Kind        Kind
	Title       string
	Body        string
	Status      Status
	Prioritized bool
	AgentCursor *int // index of the next agent to run; nil when idle
	InFlight    bool
	EnqueuedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Resting reports whether the item is in a state that requires a user action
// (enqueue, comment, approve) before the engine touches it again.
func (w *WorkItem) Resting() bool {
	if w.InFlight {
		return false
	}
	switch w.Kind {
	case KindTask:
		return w.Status == StatusInReview || w.Status == StatusDone
	case KindChat:
		return w.Status == StatusIdle || w.Status == StatusCompleted || w.Status == StatusFailed
	}
	return false
}

// InitialStatus returns the status a freshly created item of the given kind
// starts in.
func InitialStatus(kind Kind) Status {
	if kind == KindChat {
		return StatusIdle
	}
	return StatusTodo
}

// PendingStatus returns the status of an item waiting in the queue.
func PendingStatus(kind Kind) Status {
	if kind == KindChat {
		return StatusQueued
	}
	return StatusTodo
}
