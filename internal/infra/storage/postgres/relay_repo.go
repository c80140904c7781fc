package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
)

const relayColumns = `queue, tx_id, tx_type, contract_address, tx_params, status, tx_sender,
	authorizer, tx_authorization, tx_hash, block_number, finalized, failure_reason,
	created_at, updated_at`

// relayRow is the table shape of a relay transaction; JSON columns are
// scanned as raw bytes.
type relayRow struct {
	Queue           string    `db:"queue"`
	TxID            string    `db:"tx_id"`
	TxType          string    `db:"tx_type"`
	ContractAddress string    `db:"contract_address"`
	Params          []byte    `db:"tx_params"`
	Status          string    `db:"status"`
	Sender          string    `db:"tx_sender"`
	Authorizer      string    `db:"authorizer"`
	Authorization   []byte    `db:"tx_authorization"`
	TxHash          *string   `db:"tx_hash"`
	BlockNumber     *int64    `db:"block_number"`
	Finalized       bool      `db:"finalized"`
	FailureReason   *string   `db:"failure_reason"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (row *relayRow) toDomain() (*domain.RelayTransaction, error) {
	tx := &domain.RelayTransaction{
		TxID:            row.TxID,
		Queue:           domain.Queue(row.Queue),
		TxType:          domain.TxType(row.TxType),
		ContractAddress: row.ContractAddress,
		Params:          json.RawMessage(row.Params),
		Status:          domain.TxStatus(row.Status),
		Sender:          row.Sender,
		Authorizer:      row.Authorizer,
		TxHash:          row.TxHash,
		Finalized:       row.Finalized,
		FailureReason:   row.FailureReason,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if row.BlockNumber != nil {
		n := uint64(*row.BlockNumber)
		tx.BlockNumber = &n
	}
	if len(row.Authorization) > 0 && string(row.Authorization) != "null" {
		var auth domain.Authorization
		if err := json.Unmarshal(row.Authorization, &auth); err != nil {
			return nil, fmt.Errorf("invalid authorization of %s: %w", row.TxID, err)
		}
		tx.Authorization = &auth
	}
	return tx, nil
}

func (r *repo) selectRelay(ctx context.Context, query string, args ...any) ([]*domain.RelayTransaction, error) {
	var rows []relayRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query relay transactions: %w", err)
	}
	out := make([]*domain.RelayTransaction, 0, len(rows))
	for i := range rows {
		tx, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// Enqueue inserts a PENDING row.
func (r *repo) Enqueue(ctx context.Context, tx *domain.RelayTransaction) error {
	var auth []byte
	if tx.Authorization != nil {
		var err error
		if auth, err = json.Marshal(tx.Authorization); err != nil {
			return fmt.Errorf("failed to marshal authorization: %w", err)
		}
	}
	params := []byte(tx.Params)
	if len(params) == 0 {
		params = []byte("{}")
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO relay_transaction (queue, tx_id, tx_type, contract_address, tx_params,
			status, tx_sender, authorizer, tx_authorization)
		VALUES ($1, $2, $3, $4, $5, 'PENDING', $6, $7, $8)`,
		string(tx.Queue), tx.TxID, string(tx.TxType), tx.ContractAddress, string(params),
		tx.Sender, tx.Authorizer, nullableJSON(auth))
	if isUniqueViolation(err) {
		return storage.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue relay transaction: %w", err)
	}
	return nil
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (r *repo) GetRelayTransaction(
	ctx context.Context,
	queue domain.Queue,
	txID string,
) (*domain.RelayTransaction, error) {
	var row relayRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT `+relayColumns+` FROM relay_transaction WHERE queue = $1 AND tx_id = $2`,
		string(queue), txID)
	if err != nil {
		return nil, notFound(err)
	}
	return row.toDomain()
}

// ListByStatus returns the rows of a queue in one status, oldest first.
func (r *repo) ListByStatus(
	ctx context.Context,
	queue domain.Queue,
	status domain.TxStatus,
) ([]*domain.RelayTransaction, error) {
	return r.selectRelay(ctx,
		`SELECT `+relayColumns+` FROM relay_transaction
		WHERE queue = $1 AND status = $2
		ORDER BY created_at, tx_id`,
		string(queue), string(status))
}

func (r *repo) ListUnfinalized(ctx context.Context, queue domain.Queue) ([]*domain.RelayTransaction, error) {
	return r.selectRelay(ctx,
		`SELECT `+relayColumns+` FROM relay_transaction
		WHERE queue = $1 AND status = 'SUCCEEDED' AND NOT finalized
		ORDER BY block_number, tx_id`,
		string(queue))
}

// UpdateStatus moves a non-terminal row to its next status.
func (r *repo) UpdateStatus(ctx context.Context, tx *domain.RelayTransaction) error {
	var block *int64
	if tx.BlockNumber != nil {
		n := int64(*tx.BlockNumber)
		block = &n
	}
	res, err := r.q.ExecContext(ctx, `
		UPDATE relay_transaction
		SET status = $3, tx_hash = $4, block_number = $5, failure_reason = $6, updated_at = NOW()
		WHERE queue = $1 AND tx_id = $2 AND status IN ('PENDING', 'SENT')`,
		string(tx.Queue), tx.TxID, string(tx.Status), tx.TxHash, block, tx.FailureReason)
	if err != nil {
		return fmt.Errorf("failed to update relay transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update relay transaction: %w", err)
	}
	if n == 0 {
		return storage.ErrStaleTransition
	}
	return nil
}

func (r *repo) MarkFinalized(ctx context.Context, queue domain.Queue, txID string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE relay_transaction SET finalized = TRUE, updated_at = NOW()
		WHERE queue = $1 AND tx_id = $2 AND status = 'SUCCEEDED'`,
		string(queue), txID)
	if err != nil {
		return fmt.Errorf("failed to finalize relay transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrStaleTransition
	}
	return nil
}
