package workitem

import (
	"context"
	"time"
)

// Repository defines the durable store operations for work items. The claim
// and release operations carry the queue semantics: claim is a single atomic
// check-and-set, release is the only way an in-flight lock is dropped.
type Repository interface {
	Create(ctx context.Context, item *WorkItem) error
	Get(ctx context.Context, id string) (*WorkItem, error)
	List(ctx context.Context, workspaceID string) ([]*WorkItem, error)
	Update(ctx context.Context, item *WorkItem) error
	Delete(ctx context.Context, id string) error

	// Enqueue marks the item eligible, sets its pending status, and resets
	// the agent cursor. It is a no-op (returning false) when the item is
	// already queued or in flight.
	Enqueue(ctx context.Context, id string, pending Status) (bool, error)

	// ClaimNext atomically claims the highest-priority eligible item:
	// prioritized first, then FIFO by enqueue time. It returns nil when no
	// item is eligible or maxInFlight items are already claimed.
	ClaimNext(ctx context.Context, maxInFlight int) (*WorkItem, error)

	// Release drops the in-flight lock, records the new status and cursor,
	// and clears eligibility. It reports false when the item was not in
	// flight, so a pass and a user cancel racing to settle the same item
	// resolve to exactly one winner.
	Release(ctx context.Context, id string, status Status, cursor *int) (bool, error)

	// SetAgentCursor persists pipeline progress mid-pass. Guarded by the
	// in-flight lock; a no-op once the item has been released.
	SetAgentCursor(ctx context.Context, id string, cursor int) error

	// SetStatus applies a user transition to an item that is not in flight,
	// clearing the cursor and eligibility. It reports false when the item
	// was claimed between the caller's read and this write.
	SetStatus(ctx context.Context, id string, status Status) (bool, error)

	// SetPrioritized flips the task priority flag.
	SetPrioritized(ctx context.Context, id string, prioritized bool) error

	// ListSettledBefore returns terminal items not updated since cutoff,
	// for the retention reaper.
	ListSettledBefore(ctx context.Context, cutoff time.Time) ([]*WorkItem, error)
}
