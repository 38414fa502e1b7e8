package repositoryimpl

import (
	"context"
	"database/sql"

	"github.com/ktagawa/agentq/internal/notifier"
	"github.com/ktagawa/agentq/pkg/cerr"
)

type SQLiteRepository struct {
	conn *sql.DB
}

func NewSQLiteRepository(conn *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{conn: conn}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, sub *notifier.Subscription) error {
	_, err := r.conn.ExecContext(ctx, `
		INSERT INTO push_subscriptions (id, endpoint, p256dh_key, auth_key, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (endpoint) DO UPDATE SET
			p256dh_key = excluded.p256dh_key,
			auth_key = excluded.auth_key`,
		sub.ID, sub.Endpoint, sub.P256dhKey, sub.AuthKey, sub.CreatedAt,
	)
	if err != nil {
		return cerr.WrapStoreWriteError("push subscription", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*notifier.Subscription, error) {
	rows, err := r.conn.QueryContext(ctx,
		`SELECT id, endpoint, p256dh_key, auth_key, created_at FROM push_subscriptions`)
	if err != nil {
		return nil, cerr.WrapStoreReadError("push subscriptions", err)
	}
	defer rows.Close()

	var subs []*notifier.Subscription
	for rows.Next() {
		var s notifier.Subscription
		if err := rows.Scan(&s.ID, &s.Endpoint, &s.P256dhKey, &s.AuthKey, &s.CreatedAt); err != nil {
			return nil, cerr.WrapStoreReadError("push subscriptions", err)
		}
		subs = append(subs, &s)
	}
	return subs, rows.Err()
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.conn.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE id = ?`, id); err != nil {
		return cerr.WrapStoreWriteError("push subscription", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	if _, err := r.conn.ExecContext(ctx,
		`DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint); err != nil {
		return cerr.WrapStoreWriteError("push subscription", err)
	}
	return nil
}
