package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebtran/momentdeals/internal/domain"
)

// CursorStore implements domain.CursorStore on a single-row table.
type CursorStore struct {
	pool *pgxpool.Pool
}

// NewCursorStore creates a CursorStore backed by the given connection pool.
func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Load returns the persisted cursor, or ErrCursorUnset when no cursor has
// ever been saved.
func (s *CursorStore) Load(ctx context.Context) (uint64, error) {
	var height int64
	err := s.pool.QueryRow(ctx, `SELECT height FROM poller_cursor WHERE id = 1`).Scan(&height)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrCursorUnset
		}
		return 0, fmt.Errorf("postgres: load cursor: %w", err)
	}
	return uint64(height), nil
}

// Save persists the cursor. The stored height never moves backwards, even if
// a lagging replica writes a stale value.
func (s *CursorStore) Save(ctx context.Context, height uint64) error {
	const query = `
		INSERT INTO poller_cursor (id, height, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET
			height     = GREATEST(poller_cursor.height, EXCLUDED.height),
			updated_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, int64(height)); err != nil {
		return fmt.Errorf("postgres: save cursor %d: %w", height, err)
	}
	return nil
}
