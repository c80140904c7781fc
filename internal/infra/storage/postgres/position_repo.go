package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

func (r *repo) GetPosition(ctx context.Context, key domain.PositionKey) (*domain.Position, error) {
	var p domain.Position
	err := sqlx.GetContext(ctx, r.q, &p, `
		SELECT token_address, account_address, balance, exchange_balance,
			exchange_commitment, pending_transfer, modified_at
		FROM idx_position
		WHERE token_address = $1 AND account_address = $2`,
		key.TokenAddress, key.AccountAddress)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *repo) UpsertPosition(ctx context.Context, p *domain.Position) error {
	query := `
		INSERT INTO idx_position (token_address, account_address, balance, exchange_balance,
			exchange_commitment, pending_transfer, modified_at)
		VALUES (:token_address, :account_address, :balance, :exchange_balance,
			:exchange_commitment, :pending_transfer, NOW())
		ON CONFLICT (token_address, account_address) DO UPDATE SET
			balance = EXCLUDED.balance,
			exchange_balance = EXCLUDED.exchange_balance,
			exchange_commitment = EXCLUDED.exchange_commitment,
			pending_transfer = EXCLUDED.pending_transfer,
			modified_at = EXCLUDED.modified_at`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, p); err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

func (r *repo) ListPositions(
	ctx context.Context,
	tokenAddress string,
	includeFormer bool,
) ([]*domain.Position, error) {
	query := `
		SELECT token_address, account_address, balance, exchange_balance,
			exchange_commitment, pending_transfer, modified_at
		FROM idx_position
		WHERE token_address = $1`
	if !includeFormer {
		query += ` AND (balance <> 0 OR exchange_balance <> 0
			OR exchange_commitment <> 0 OR pending_transfer <> 0)`
	}
	query += ` ORDER BY account_address`

	var positions []*domain.Position
	if err := sqlx.SelectContext(ctx, r.q, &positions, query, tokenAddress); err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	return positions, nil
}

func (r *repo) GetLockedPosition(
	ctx context.Context,
	key domain.LockedPositionKey,
) (*domain.LockedPosition, error) {
	var p domain.LockedPosition
	err := sqlx.GetContext(ctx, r.q, &p, `
		SELECT token_address, lock_address, account_address, value, modified_at
		FROM idx_locked_position
		WHERE token_address = $1 AND lock_address = $2 AND account_address = $3`,
		key.TokenAddress, key.LockAddress, key.AccountAddress)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *repo) UpsertLockedPosition(ctx context.Context, p *domain.LockedPosition) error {
	query := `
		INSERT INTO idx_locked_position (token_address, lock_address, account_address, value, modified_at)
		VALUES (:token_address, :lock_address, :account_address, :value, NOW())
		ON CONFLICT (token_address, lock_address, account_address) DO UPDATE SET
			value = EXCLUDED.value,
			modified_at = EXCLUDED.modified_at`
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, p); err != nil {
		return fmt.Errorf("failed to upsert locked position: %w", err)
	}
	return nil
}

func (r *repo) ListLockedPositions(ctx context.Context, tokenAddress string) ([]*domain.LockedPosition, error) {
	var positions []*domain.LockedPosition
	err := sqlx.SelectContext(ctx, r.q, &positions, `
		SELECT token_address, lock_address, account_address, value, modified_at
		FROM idx_locked_position
		WHERE token_address = $1
		ORDER BY lock_address, account_address`, tokenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to list locked positions: %w", err)
	}
	return positions, nil
}
