package repositoryimpl

import (
	"context"
	"database/sql"

	"github.com/ktagawa/agentq/internal/itemlog"
	"github.com/ktagawa/agentq/pkg/cerr"
)

type SQLiteRepository struct {
	conn *sql.DB
}

func NewSQLiteRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{conn: conn}
}

func (r *SQLiteRepository) Append(ctx context.Context, e *itemlog.Entry) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO item_logs (id, work_item_id, kind, message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.WorkItemID, e.Kind, e.Message, e.CreatedAt,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("item log", err)
	}
	return nil
}

func (r *SQLiteRepository) ListByWorkItem(ctx context.Context, workItemID string) ([]*itemlog.Entry, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT id, work_item_id, kind, message, created_at FROM item_logs
		WHERE work_item_id = ?
		ORDER BY created_at, id`,
		workItemID,
	)
	if err != nil {
		return nil, cerr.WrapStoreReadError("item logs", err)
	}
	defer rows.Close()

	var entries []*itemlog.Entry
	for rows.Next() {
		var e itemlog.Entry
		if err := rows.Scan(&e.ID, &e.WorkItemID, &e.Kind, &e.Message, &e.CreatedAt); err != nil {
			return nil, cerr.WrapStoreReadError("item logs", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *SQLiteRepository) DeleteByWorkItem(ctx context.Context, workItemID string) error {
	if _, err := r.conn.ExecContext(ctx,
		`DELETE FROM item_logs WHERE work_item_id = ?`, workItemID); err != nil {
		return cerr.WrapStoreWriteError("item logs", err)
	}
	return nil
}
