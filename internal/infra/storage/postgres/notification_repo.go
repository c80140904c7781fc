package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

type notificationRow struct {
	ID            string    `db:"notice_id"`
	Type          string    `db:"notice_type"`
	IssuerAddress string    `db:"issuer_address"`
	TokenAddress  string    `db:"token_address"`
	BlockNumber   int64     `db:"block_number"`
	Metainfo      []byte    `db:"metainfo"`
	Published     bool      `db:"published"`
	CreatedAt     time.Time `db:"created_at"`
}

// AddNotification ignores an id that is already stored.
func (r *repo) AddNotification(ctx context.Context, n *domain.Notification) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO notification (notice_id, notice_type, issuer_address, token_address,
			block_number, metainfo)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (notice_id) DO NOTHING`,
		n.ID, string(n.Type), n.IssuerAddress, n.TokenAddress, int64(n.BlockNumber), string(n.Metainfo))
	if err != nil {
		return fmt.Errorf("failed to add notification: %w", err)
	}
	return nil
}

func (r *repo) ListUnpublished(ctx context.Context, limit int) ([]*domain.Notification, error) {
	var rows []notificationRow
	err := sqlx.SelectContext(ctx, r.q, &rows, `
		SELECT notice_id, notice_type, issuer_address, token_address, block_number,
			metainfo, published, created_at
		FROM notification
		WHERE NOT published
		ORDER BY created_at, notice_id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	out := make([]*domain.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, &domain.Notification{
			ID:            row.ID,
			Type:          domain.NotificationType(row.Type),
			IssuerAddress: row.IssuerAddress,
			TokenAddress:  row.TokenAddress,
			BlockNumber:   uint64(row.BlockNumber),
			Metainfo:      row.Metainfo,
			Published:     row.Published,
			CreatedAt:     row.CreatedAt,
		})
	}
	return out, nil
}

func (r *repo) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE notification SET published = TRUE WHERE notice_id IN (?)`, ids)
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, r.q.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to mark notifications published: %w", err)
	}
	return nil
}
