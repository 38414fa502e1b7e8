package repositoryimpl

import (
	"context"
	"database/sql"
	"time"

	"github.com/ktagawa/agentq/internal/workspace"
	"github.com/ktagawa/agentq/pkg/cerr"
)

type SQLiteRepository struct {
	conn *sql.DB
}

func NewSQLiteRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{conn: conn}
}

const workspaceColumns = `id, name, working_dir_mode, working_dir_path, auto_delete_done, retention_days, notify_on_error, notify_on_in_review, created_at, updated_at`

func scanWorkspace(row interface{ Scan(...any) error }) (*workspace.Workspace, error) {
	var ws workspace.Workspace
	err := row.Scan(
		&ws.ID, &ws.Name, &ws.WorkingDirMode, &ws.WorkingDirPath,
		&ws.AutoDeleteDone, &ws.RetentionDays, &ws.NotifyOnError,
		&ws.NotifyOnInReview, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, ws *workspace.Workspace) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO workspaces (`+workspaceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ws.ID, ws.Name, ws.WorkingDirMode, ws.WorkingDirPath,
		ws.AutoDeleteDone, ws.RetentionDays, ws.NotifyOnError,
		ws.NotifyOnInReview, ws.CreatedAt, ws.UpdatedAt,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("workspace", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*workspace.Workspace, error) {
	ws, err := scanWorkspace(r.conn.QueryRowContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE id = ?`, id))
	if err != nil {
		return nil, cerr.WrapStoreReadError("workspace", err)
	}
	return ws, nil
}

func (r *SQLiteRepository) GetByName(ctx context.Context, name string) (*workspace.Workspace, error) {
	ws, err := scanWorkspace(r.conn.QueryRowContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE name = ?`, name))
	if err != nil {
		return nil, cerr.WrapStoreReadError("workspace", err)
	}
	return ws, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*workspace.Workspace, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces ORDER BY name`)
	if err != nil {
		return nil, cerr.WrapStoreReadError("workspaces", err)
	}
	defer rows.Close()

	var list []*workspace.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, cerr.WrapStoreReadError("workspaces", err)
		}
		list = append(list, ws)
	}
	return list, rows.Err()
}

func (r *SQLiteRepository) Update(ctx context.Context, ws *workspace.Workspace) error {
	ws.UpdatedAt = time.Now().UTC()
	res, err := r.conn.ExecContext(ctx, `
		UPDATE workspaces
		SET name = ?, working_dir_mode = ?, working_dir_path = ?,
		    auto_delete_done = ?, retention_days = ?, notify_on_error = ?,
		    notify_on_in_review = ?, updated_at = ?
		WHERE id = ?`,
		ws.Name, ws.WorkingDirMode, ws.WorkingDirPath,
		ws.AutoDeleteDone, ws.RetentionDays, ws.NotifyOnError,
		ws.NotifyOnInReview, ws.UpdatedAt, ws.ID,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("workspace", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerr.NewError(cerr.NotFound, "workspace not found", nil)
	}
	return nil
}

func (r *SQLiteRepository) Upsert(ctx context.Context, ws *workspace.Workspace) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO workspaces (`+workspaceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			working_dir_mode = excluded.working_dir_mode,
			working_dir_path = excluded.working_dir_path,
			auto_delete_done = excluded.auto_delete_done,
			retention_days = excluded.retention_days,
			notify_on_error = excluded.notify_on_error,
			notify_on_in_review = excluded.notify_on_in_review,
			updated_at = excluded.updated_at`,
		ws.ID, ws.Name, ws.WorkingDirMode, ws.WorkingDirPath,
		ws.AutoDeleteDone, ws.RetentionDays, ws.NotifyOnError,
		ws.NotifyOnInReview, ws.CreatedAt, ws.UpdatedAt,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("workspace", err)
	}
	return nil
}
