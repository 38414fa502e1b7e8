package itemlog

import "context"

type Repository interface {
	Append(ctx context.Context, e *Entry) error
	ListByWorkItem(ctx context.Context, workItemID string) ([]*Entry, error)
	DeleteByWorkItem(ctx context.Context, workItemID string) error
}
