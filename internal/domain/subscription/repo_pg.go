package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaxtrack/vaxtrack/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepoPG returns the Postgres-backed subscription repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const subCols = `id, user_id, channel, address, digest, created_at`

func scanSub(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Channel, &sub.Address, &sub.Digest, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func collectSubs(rows pgx.Rows) ([]*Subscription, error) {
	defer rows.Close()
	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, sub *Subscription) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO notification_subscriptions (id, user_id, channel, address, digest, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.UserID, sub.Channel, sub.Address, sub.Digest, sub.CreatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+subCols+` FROM notification_subscriptions WHERE id = $1`, id)
	sub, err := scanSub(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

func (r *repoPG) ListByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+subCols+` FROM notification_subscriptions
		WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	return collectSubs(rows)
}

func (r *repoPG) ListDigestEnabled(ctx context.Context) ([]*Subscription, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+subCols+` FROM notification_subscriptions
		WHERE digest = TRUE ORDER BY user_id, created_at`)
	if err != nil {
		return nil, err
	}
	return collectSubs(rows)
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM notification_subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM notification_subscriptions WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
