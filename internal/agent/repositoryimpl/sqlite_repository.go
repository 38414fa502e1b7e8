package repositoryimpl

import (
	"context"
	"database/sql"
	"time"

	"github.com/ktagawa/agentq/internal/agent"
	"github.com/ktagawa/agentq/pkg/cerr"
)

type SQLiteRepository struct {
	conn *sql.DB
}

func NewSQLiteRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{conn: conn}
}

const agentColumns = `id, workspace_id, name, instruction, cli_type, position, created_at, updated_at`

func scanAgent(row interface{ Scan(...any) error }) (*agent.Agent, error) {
	var a agent.Agent
	err := row.Scan(
		&a.ID, &a.WorkspaceID, &a.Name, &a.Instruction,
		&a.CLIType, &a.Position, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, a *agent.Agent) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.WorkspaceID, a.Name, a.Instruction,
		a.CLIType, a.Position, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("agent", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*agent.Agent, error) {
	a, err := scanAgent(r.conn.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = ?`, id))
	if err != nil {
		return nil, cerr.WrapStoreReadError("agent", err)
	}
	return a, nil
}

func (r *SQLiteRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*agent.Agent, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT `+agentColumns+` FROM agents
		WHERE workspace_id = ?
		ORDER BY position, id`,
		workspaceID,
	)
	if err != nil {
		return nil, cerr.WrapStoreReadError("agents", err)
	}
	defer rows.Close()

	var agents []*agent.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, cerr.WrapStoreReadError("agents", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (r *SQLiteRepository) Update(ctx context.Context, a *agent.Agent) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := r.conn.ExecContext(ctx, `
		UPDATE agents
		SET name = ?, instruction = ?, cli_type = ?, position = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.Instruction, a.CLIType, a.Position, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("agent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return cerr.NewError(cerr.NotFound, "agent not found", nil)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.conn.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id); err != nil {
		return cerr.WrapStoreWriteError("agent", err)
	}
	return nil
}

func (r *SQLiteRepository) Reorder(ctx context.Context, workspaceID string, orderedIDs []string) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return cerr.WrapStoreWriteError("agent order", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for pos, id := range orderedIDs {
		res, err := tx.ExecContext(ctx, `
			UPDATE agents SET position = ?, updated_at = ?
			WHERE id = ? AND workspace_id = ?`,
			pos, now, id, workspaceID,
		)
		if err != nil {
			return cerr.WrapStoreWriteError("agent order", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return cerr.NewError(cerr.InvalidArgument, "unknown agent in order: "+id, nil)
		}
	}
	if err := tx.Commit(); err != nil {
		return cerr.WrapStoreWriteError("agent order", err)
	}
	return nil
}
