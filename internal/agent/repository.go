package agent

import "context"

type Repository interface {
	Create(ctx context.Context, a *Agent) error
	Get(ctx context.Context, id string) (*Agent, error)
	// ListByWorkspace returns the workspace's agents in pipeline order.
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*Agent, error)
	Update(ctx context.Context, a *Agent) error
	Delete(ctx context.Context, id string) error
	// Reorder rewrites positions so they match the given id order.
	Reorder(ctx context.Context, workspaceID string, orderedIDs []string) error
}
