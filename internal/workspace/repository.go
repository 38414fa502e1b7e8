package workspace

import "context"

type Repository interface {
	Create(ctx context.Context, ws *Workspace) error
	Get(ctx context.Context, id string) (*Workspace, error)
	GetByName(ctx context.Context, name string) (*Workspace, error)
	List(ctx context.Context) ([]*Workspace, error)
	Update(ctx context.Context, ws *Workspace) error
	// Upsert inserts by name or updates the existing row, keeping its id.
	// The seed loader uses it so reloads never re-key a workspace.
	Upsert(ctx context.Context, ws *Workspace) error
}
