package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/metrics"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
)

// Store implements storage.Store on PostgreSQL.
type Store struct {
	*repo
	db *DB
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a store over an open database.
func NewStore(db *DB) *Store {
	return &Store{repo: &repo{q: db}, db: db}
}

// WithTx runs fn inside a database transaction, committing when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx storage.Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Safe after commit: returns sql.ErrTxDone which is ignored
	defer func() { _ = tx.Rollback() }()

	if err := fn(&repo{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		metrics.DBErrors.WithLabelValues("commit").Inc()
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// repo runs queries against either the pool or an open transaction.
type repo struct {
	q sqlx.ExtContext
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
