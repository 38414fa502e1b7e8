package runrecord

import (
	"context"
	"time"
)

type Repository interface {
	// Create inserts an open run. The store enforces at most one open run per
	// work item; a second insert fails.
	Create(ctx context.Context, rec *RunRecord) error
	Get(ctx context.Context, id string) (*RunRecord, error)
	ListByWorkItem(ctx context.Context, workItemID string) ([]*RunRecord, error)
	// Finish closes the run with its outcome and captured output.
	Finish(ctx context.Context, id string, outcome Outcome, rawOutput, errorMessage string, finishedAt time.Time) error
	// MarkArchived flags records whose output has been copied to archive
	// storage.
	MarkArchived(ctx context.Context, ids []string) error
	DeleteByWorkItem(ctx context.Context, workItemID string) error
}
