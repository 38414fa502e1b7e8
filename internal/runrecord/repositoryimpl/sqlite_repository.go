package repositoryimpl

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ktagawa/agentq/internal/runrecord"
	"github.com/ktagawa/agentq/pkg/cerr"
)

type SQLiteRepository struct {
	conn *sql.DB
}

func NewSQLiteRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{conn: conn}
}

const recordColumns = `id, work_item_id, agent_id, working_dir, started_at, finished_at, outcome, raw_output, error_message, archived`

func scanRecord(row interface{ Scan(...any) error }) (*runrecord.RunRecord, error) {
	var (
		rec        runrecord.RunRecord
		agentID    sql.NullString
		finishedAt sql.NullTime
		outcome    sql.NullString
	)
	err := row.Scan(
		&rec.ID, &rec.WorkItemID, &agentID, &rec.WorkingDir, &rec.StartedAt,
		&finishedAt, &outcome, &rec.RawOutput, &rec.ErrorMessage, &rec.Archived,
	)
	if err != nil {
		return nil, err
	}
	if agentID.Valid {
		rec.AgentID = &agentID.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		rec.FinishedAt = &t
	}
	if outcome.Valid {
		rec.Outcome = runrecord.Outcome(outcome.String)
	}
	return &rec, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, rec *runrecord.RunRecord) error {
	var agentID any
	if rec.AgentID != nil {
		agentID = *rec.AgentID
	}
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO run_records (id, work_item_id, agent_id, working_dir, started_at, raw_output, error_message)
		VALUES (?, ?, ?, ?, ?, '', '')`,
		rec.ID, rec.WorkItemID, agentID, rec.WorkingDir, rec.StartedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "idx_run_records_open") {
			return cerr.NewError(cerr.FailedPrecondition, "work item already has an open run", err)
		}
		return cerr.WrapStoreWriteError("run record", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*runrecord.RunRecord, error) {
	rec, err := scanRecord(r.conn.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM run_records WHERE id = ?`, id))
	if err != nil {
		return nil, cerr.WrapStoreReadError("run record", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) ListByWorkItem(ctx context.Context, workItemID string) ([]*runrecord.RunRecord, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM run_records
		WHERE work_item_id = ?
		ORDER BY started_at, id`,
		workItemID,
	)
	if err != nil {
		return nil, cerr.WrapStoreReadError("run records", err)
	}
	defer rows.Close()

	var recs []*runrecord.RunRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, cerr.WrapStoreReadError("run records", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *SQLiteRepository) Finish(ctx context.Context, id string, outcome runrecord.Outcome, rawOutput, errorMessage string, finishedAt time.Time) error {
	res, err := r.conn.ExecContext(ctx, `
		UPDATE run_records
		SET finished_at = ?, outcome = ?, raw_output = ?, error_message = ?
		WHERE id = ? AND finished_at IS NULL`,
		finishedAt, outcome, rawOutput, errorMessage, id,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("run record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerr.NewError(cerr.FailedPrecondition, "run record already finished", nil)
	}
	return nil
}

func (r *SQLiteRepository) MarkArchived(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := r.conn.ExecContext(ctx,
		`UPDATE run_records SET archived = 1 WHERE id IN (`+placeholders[:len(placeholders)-1]+`)`,
		args...,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("run records", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByWorkItem(ctx context.Context, workItemID string) error {
	if _, err := r.conn.ExecContext(ctx,
		`DELETE FROM run_records WHERE work_item_id = ?`, workItemID); err != nil {
		return cerr.WrapStoreWriteError("run records", err)
	}
	return nil
}
