package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

const tokenColumns = `token_address, token_type, abi, issuer_address, exchange_address,
	wrapper_address, initial_position_synced, active, created_at`

// SaveToken inserts or replaces a token registration.
func (r *repo) SaveToken(ctx context.Context, t *domain.Token) error {
	query := `
		INSERT INTO token (token_address, token_type, abi, issuer_address, exchange_address,
			wrapper_address, initial_position_synced, active)
		VALUES (:token_address, :token_type, :abi, :issuer_address, :exchange_address,
			:wrapper_address, :initial_position_synced, :active)
		ON CONFLICT (token_address) DO UPDATE SET
			token_type = EXCLUDED.token_type,
			abi = EXCLUDED.abi,
			issuer_address = EXCLUDED.issuer_address,
			exchange_address = EXCLUDED.exchange_address,
			wrapper_address = EXCLUDED.wrapper_address,
			active = EXCLUDED.active`
	row := *t
	row.Normalize()
	if _, err := sqlx.NamedExecContext(ctx, r.q, query, &row); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// GetToken retrieves a token by address.
func (r *repo) GetToken(ctx context.Context, address string) (*domain.Token, error) {
	var t domain.Token
	err := sqlx.GetContext(ctx, r.q, &t,
		`SELECT `+tokenColumns+` FROM token WHERE lower(token_address) = lower($1)`, address)
	if err != nil {
		return nil, notFound(err)
	}
	t.Normalize()
	return &t, nil
}

// ListActiveTokens returns every active token, oldest registration first.
func (r *repo) ListActiveTokens(ctx context.Context) ([]*domain.Token, error) {
	var tokens []*domain.Token
	err := sqlx.SelectContext(ctx, r.q, &tokens,
		`SELECT `+tokenColumns+` FROM token WHERE active ORDER BY created_at, token_address`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	// Rows seeded outside SaveToken may carry lowercase addresses.
	for _, t := range tokens {
		t.Normalize()
	}
	return tokens, nil
}

// FindTokenByWrapper returns the token wrapped by the contract at wrapperAddress.
func (r *repo) FindTokenByWrapper(ctx context.Context, wrapperAddress string) (*domain.Token, error) {
	var t domain.Token
	err := sqlx.GetContext(ctx, r.q, &t,
		`SELECT `+tokenColumns+` FROM token WHERE lower(wrapper_address) = lower($1) AND wrapper_address <> ''`,
		wrapperAddress)
	if err != nil {
		return nil, notFound(err)
	}
	t.Normalize()
	return &t, nil
}

// MarkTokenSynced sets initial_position_synced.
func (r *repo) MarkTokenSynced(ctx context.Context, address string) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE token SET initial_position_synced = TRUE WHERE lower(token_address) = lower($1)`, address)
	if err != nil {
		return fmt.Errorf("failed to mark token synced: %w", err)
	}
	return nil
}
