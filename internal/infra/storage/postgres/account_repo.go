package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

func (r *repo) SaveAccount(ctx context.Context, a *domain.Account) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO account (issuer_address, keyfile, eoa_password)
		VALUES ($1, $2, $3)
		ON CONFLICT (issuer_address) DO UPDATE SET
			keyfile = EXCLUDED.keyfile,
			eoa_password = EXCLUDED.eoa_password`,
		a.IssuerAddress, string(a.Keyfile), a.EncryptedPassword)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (r *repo) GetAccount(ctx context.Context, issuerAddress string) (*domain.Account, error) {
	var a domain.Account
	err := sqlx.GetContext(ctx, r.q, &a,
		`SELECT issuer_address, keyfile, eoa_password FROM account WHERE issuer_address = $1`,
		issuerAddress)
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}
