package storage

import (
	"context"
	"errors"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

var (
	// ErrNotFound is returned when a requested row doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrStaleTransition is returned when a relay row is no longer in a
	// state that allows the requested status change.
	ErrStaleTransition = errors.New("stale status transition")

	// ErrDuplicate is returned when inserting a row whose key already exists.
	ErrDuplicate = errors.New("duplicate key")
)

// TokenRepository handles the token registry.
type TokenRepository interface {
	// SaveToken inserts or replaces a token registration.
	SaveToken(ctx context.Context, token *domain.Token) error

	// GetToken retrieves a token by address.
	GetToken(ctx context.Context, address string) (*domain.Token, error)

	// ListActiveTokens returns every token that has not been deactivated.
	ListActiveTokens(ctx context.Context) ([]*domain.Token, error)

	// FindTokenByWrapper returns the token whose wrapped counterpart lives at address.
	FindTokenByWrapper(ctx context.Context, wrapperAddress string) (*domain.Token, error)

	// MarkTokenSynced sets initial_position_synced.
	MarkTokenSynced(ctx context.Context, address string) error
}

// PositionRepository handles position and locked position snapshots.
type PositionRepository interface {
	GetPosition(ctx context.Context, key domain.PositionKey) (*domain.Position, error)

	// UpsertPosition writes a position row, creating it when missing.
	UpsertPosition(ctx context.Context, p *domain.Position) error

	// ListPositions returns the positions of a token ordered by account.
	// Former holders (all-zero rows) are included only when includeFormer is set.
	ListPositions(ctx context.Context, tokenAddress string, includeFormer bool) ([]*domain.Position, error)

	GetLockedPosition(ctx context.Context, key domain.LockedPositionKey) (*domain.LockedPosition, error)

	UpsertLockedPosition(ctx context.Context, p *domain.LockedPosition) error

	// ListLockedPositions returns the locked positions of a token.
	ListLockedPositions(ctx context.Context, tokenAddress string) ([]*domain.LockedPosition, error)
}

// CursorRepository handles block cursors.
type CursorRepository interface {
	// GetCursor returns ErrNotFound when the indexer has never committed.
	GetCursor(ctx context.Context, name string) (*domain.BlockCursor, error)

	// SaveCursor upserts the cursor. It refuses to move a cursor backwards.
	SaveCursor(ctx context.Context, cursor *domain.BlockCursor) error

	// ResetCursor overwrites the cursor unconditionally (operator use only).
	ResetCursor(ctx context.Context, name string, blockNumber uint64) error

	ListCursors(ctx context.Context) ([]*domain.BlockCursor, error)
}

// RelayRepository handles the relay and bridge queues.
type RelayRepository interface {
	// Enqueue inserts a new PENDING row. Returns ErrDuplicate for a known tx_id.
	Enqueue(ctx context.Context, tx *domain.RelayTransaction) error

	GetRelayTransaction(ctx context.Context, queue domain.Queue, txID string) (*domain.RelayTransaction, error)

	// ListByStatus returns the rows of a queue in the given status, oldest first.
	ListByStatus(ctx context.Context, queue domain.Queue, status domain.TxStatus) ([]*domain.RelayTransaction, error)

	// ListUnfinalized returns SUCCEEDED rows that are not finalized yet.
	ListUnfinalized(ctx context.Context, queue domain.Queue) ([]*domain.RelayTransaction, error)

	// UpdateStatus persists status, tx hash, block number and failure reason.
	// Only rows currently PENDING or SENT may change; otherwise ErrStaleTransition.
	UpdateStatus(ctx context.Context, tx *domain.RelayTransaction) error

	// MarkFinalized flags a SUCCEEDED row as finalized.
	MarkFinalized(ctx context.Context, queue domain.Queue, txID string) error
}

// NotificationRepository is the outbox between the indexer and the notification sink.
type NotificationRepository interface {
	// AddNotification inserts a notification. An existing id is left untouched.
	AddNotification(ctx context.Context, n *domain.Notification) error

	// ListUnpublished returns up to limit unpublished notifications, oldest first.
	ListUnpublished(ctx context.Context, limit int) ([]*domain.Notification, error)

	MarkPublished(ctx context.Context, ids []string) error
}

// AccountRepository holds issuer key material.
type AccountRepository interface {
	SaveAccount(ctx context.Context, account *domain.Account) error
	GetAccount(ctx context.Context, issuerAddress string) (*domain.Account, error)
}

// Repository is the full set of operations available inside and outside a transaction.
type Repository interface {
	TokenRepository
	PositionRepository
	CursorRepository
	RelayRepository
	NotificationRepository
	AccountRepository
}

// Store is the durable store. Writes issued through the Repository passed to
// fn commit together or not at all.
type Store interface {
	Repository

	WithTx(ctx context.Context, fn func(tx Repository) error) error

	Close() error
}
