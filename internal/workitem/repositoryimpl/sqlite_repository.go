package repositoryimpl

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ktagawa/agentq/internal/workitem"
	"github.com/ktagawa/agentq/pkg/cerr"
)

type SQLiteRepository struct {
	conn *sql.DB
}

func NewSQLiteRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{conn: conn}
}

const itemColumns = `id, workspace_id, kind, title, body, status, prioritized, agent_cursor, in_flight, enqueued_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*workitem.WorkItem, error) {
	var (
		item       workitem.WorkItem
		cursor     sql.NullInt64
		enqueuedAt sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.WorkspaceID, &item.Kind, &item.Title, &item.Body,
		&item.Status, &item.Prioritized, &cursor, &item.InFlight,
		&enqueuedAt, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cursor.Valid {
		c := int(cursor.Int64)
		item.AgentCursor = &c
	}
	if enqueuedAt.Valid {
		t := enqueuedAt.Time
		item.EnqueuedAt = &t
	}
	return &item, nil
}

func nullCursor(cursor *int) any {
	if cursor == nil {
		return nil
	}
	return *cursor
}

func (r *SQLiteRepository) Create(ctx context.Context, item *workitem.WorkItem) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO work_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.WorkspaceID, item.Kind, item.Title, item.Body,
		item.Status, item.Prioritized, nullCursor(item.AgentCursor),
		item.InFlight, item.EnqueuedAt, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("work item", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*workitem.WorkItem, error) {
	item, err := scanItem(r.conn.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM work_items WHERE id = ?`, id))
	if err != nil {
		return nil, cerr.WrapStoreReadError("work item", err)
	}
	return item, nil
}

func (r *SQLiteRepository) List(ctx context.Context, workspaceID string) ([]*workitem.WorkItem, error) {
	query := `SELECT ` + itemColumns + ` FROM work_items`
	args := []any{}
	if workspaceID != "" {
		query += ` WHERE workspace_id = ?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cerr.WrapStoreReadError("work items", err)
	}
	defer rows.Close()

	var items []*workitem.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, cerr.WrapStoreReadError("work items", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.WrapStoreReadError("work items", err)
	}
	return items, nil
}

func (r *SQLiteRepository) Update(ctx context.Context, item *workitem.WorkItem) error {
	item.UpdatedAt = time.Now().UTC()
	res, err := r.conn.ExecContext(ctx, `
		UPDATE work_items
		SET title = ?, body = ?, status = ?, prioritized = ?, agent_cursor = ?,
		    in_flight = ?, enqueued_at = ?, updated_at = ?
		WHERE id = ?`,
		item.Title, item.Body, item.Status, item.Prioritized,
		nullCursor(item.AgentCursor), item.InFlight, item.EnqueuedAt,
		item.UpdatedAt, item.ID,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("work item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerr.NewError(cerr.NotFound, "work item not found", nil)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.conn.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id); err != nil {
		return cerr.WrapStoreWriteError("work item", err)
	}
	return nil
}

// Enqueue is a single conditional update: it only fires when the item is not
// in flight and not already queued, so concurrent enqueues collapse into one.
func (r *SQLiteRepository) Enqueue(ctx context.Context, id string, pending workitem.Status) (bool, error) {
	now := time.Now().UTC()
	res, err := r.conn.ExecContext(ctx, `
		UPDATE work_items
		SET status = ?, agent_cursor = 0, enqueued_at = ?, updated_at = ?
		WHERE id = ? AND in_flight = 0 AND enqueued_at IS NULL`,
		pending, now, now, id,
	)
	if err != nil {
		return false, cerr.WrapStoreWriteError("work item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, cerr.WrapStoreWriteError("work item", err)
	}
	return n > 0, nil
}

// ClaimNext is the queue's single-flight guarantee: one UPDATE that picks the
// winner, flips the lock, and moves it to in_progress. Concurrent callers
// serialize on the row write, so an item is never claimed twice while open.
func (r *SQLiteRepository) ClaimNext(ctx context.Context, maxInFlight int) (*workitem.WorkItem, error) {
	now := time.Now().UTC()
	item, err := scanItem(r.conn.QueryRowContext(ctx, `
		UPDATE work_items
		SET in_flight = 1, status = 'in_progress', updated_at = ?
		WHERE id = (
			SELECT id FROM work_items
			WHERE in_flight = 0 AND enqueued_at IS NOT NULL
			  AND status IN ('todo', 'queued')
			ORDER BY prioritized DESC, enqueued_at ASC, id ASC
			LIMIT 1
		)
		AND (SELECT COUNT(*) FROM work_items WHERE in_flight = 1) < ?
		RETURNING `+itemColumns,
		now, maxInFlight,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.WrapStoreWriteError("work item claim", err)
	}
	return item, nil
}

func (r *SQLiteRepository) Release(ctx context.Context, id string, status workitem.Status, cursor *int) (bool, error) {
	now := time.Now().UTC()
	res, err := r.conn.ExecContext(ctx, `
		UPDATE work_items
		SET in_flight = 0, status = ?, agent_cursor = ?, enqueued_at = NULL, updated_at = ?
		WHERE id = ? AND in_flight = 1`,
		status, nullCursor(cursor), now, id,
	)
	if err != nil {
		return false, cerr.WrapStoreWriteError("work item release", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, cerr.WrapStoreWriteError("work item release", err)
	}
	return n > 0, nil
}

// SetAgentCursor only fires while the claim lock is held; once the item is
// released the recorded cursor is owned by whoever released it.
func (r *SQLiteRepository) SetAgentCursor(ctx context.Context, id string, cursor int) error {
	_, err := r.conn.ExecContext(ctx, `
		UPDATE work_items SET agent_cursor = ?, updated_at = ? WHERE id = ? AND in_flight = 1`,
		cursor, time.Now().UTC(), id,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("work item cursor", err)
	}
	return nil
}

// SetStatus is the guarded write for user transitions (cancel before claim,
// approve, reopen): it never touches a claimed item, so it cannot strip the
// in-flight lock out from under a running pass.
func (r *SQLiteRepository) SetStatus(ctx context.Context, id string, status workitem.Status) (bool, error) {
	res, err := r.conn.ExecContext(ctx, `
		UPDATE work_items
		SET status = ?, agent_cursor = NULL, enqueued_at = NULL, updated_at = ?
		WHERE id = ? AND in_flight = 0`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return false, cerr.WrapStoreWriteError("work item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, cerr.WrapStoreWriteError("work item", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) SetPrioritized(ctx context.Context, id string, prioritized bool) error {
	res, err := r.conn.ExecContext(ctx, `
		UPDATE work_items SET prioritized = ?, updated_at = ? WHERE id = ? AND kind = 'task'`,
		prioritized, time.Now().UTC(), id,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("work item", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerr.NewError(cerr.NotFound, "task not found", nil)
	}
	return nil
}

func (r *SQLiteRepository) ListSettledBefore(ctx context.Context, cutoff time.Time) ([]*workitem.WorkItem, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM work_items
		WHERE in_flight = 0 AND status IN ('done', 'completed', 'failed')
		  AND updated_at < ?
		ORDER BY updated_at, id`,
		cutoff,
	)
	if err != nil {
		return nil, cerr.WrapStoreReadError("work items", err)
	}
	defer rows.Close()

	var items []*workitem.WorkItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, cerr.WrapStoreReadError("work items", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
