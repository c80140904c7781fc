package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

// GetCursor retrieves a block cursor by indexer name.
func (r *repo) GetCursor(ctx context.Context, name string) (*domain.BlockCursor, error) {
	var c domain.BlockCursor
	err := sqlx.GetContext(ctx, r.q, &c,
		`SELECT name, latest_block_number, updated_at FROM idx_block_cursor WHERE name = $1`, name)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// SaveCursor advances the cursor. GREATEST keeps it monotonic.
func (r *repo) SaveCursor(ctx context.Context, c *domain.BlockCursor) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO idx_block_cursor (name, latest_block_number, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			latest_block_number = GREATEST(idx_block_cursor.latest_block_number, EXCLUDED.latest_block_number),
			updated_at = EXCLUDED.updated_at`,
		c.Name, int64(c.LatestBlockNumber))
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}

// ResetCursor overwrites the cursor, also backwards.
func (r *repo) ResetCursor(ctx context.Context, name string, blockNumber uint64) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO idx_block_cursor (name, latest_block_number, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			latest_block_number = EXCLUDED.latest_block_number,
			updated_at = EXCLUDED.updated_at`,
		name, int64(blockNumber))
	if err != nil {
		return fmt.Errorf("failed to reset cursor: %w", err)
	}
	return nil
}

func (r *repo) ListCursors(ctx context.Context) ([]*domain.BlockCursor, error) {
	var cursors []*domain.BlockCursor
	err := sqlx.SelectContext(ctx, r.q, &cursors,
		`SELECT name, latest_block_number, updated_at FROM idx_block_cursor ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}
	return cursors, nil
}
