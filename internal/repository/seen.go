// Package repository holds Postgres-backed persistence for the mail loop.
package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SeenRepository records handled thread IDs in the seen_threads table so
// dedup survives restarts.
type SeenRepository struct {
	pool *pgxpool.Pool
}

func NewSeenRepository(pool *pgxpool.Pool) *SeenRepository {
	return &SeenRepository{pool: pool}
}

func (r *SeenRepository) IsSeen(ctx context.Context, threadID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM seen_threads WHERE thread_id = $1)`,
		threadID,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *SeenRepository) MarkSeen(ctx context.Context, threadID string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO seen_threads (thread_id, seen_at) VALUES ($1, $2)
		 ON CONFLICT (thread_id) DO NOTHING`,
		threadID, time.Now().UTC(),
	)
	return err
}

// Prune drops entries older than the retention window. The run command
// prunes on startup; the table otherwise grows without bound.
func (r *SeenRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM seen_threads WHERE seen_at < $1`,
		time.Now().UTC().Add(-olderThan),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
