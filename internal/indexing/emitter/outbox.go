package emitter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/metrics"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
)

// HeadSource reports the chain tip.
type HeadSource interface {
	ChainHead(ctx context.Context) (uint64, error)
}

// OutboxConfig controls draining.
type OutboxConfig struct {
	BatchSize int
	// Confirmations holds a notification back until its block is this
	// many blocks below the chain head. 0 publishes immediately.
	Confirmations uint64
}

// Outbox drains notification rows written by the indexer to an Emitter.
type Outbox struct {
	cfg   OutboxConfig
	store storage.NotificationRepository
	out   Emitter
	head  HeadSource
	log   *slog.Logger
}

// NewOutbox creates an outbox. head may be nil when Confirmations is 0.
func NewOutbox(
	cfg OutboxConfig,
	store storage.NotificationRepository,
	out Emitter,
	head HeadSource,
	log *slog.Logger,
) *Outbox {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Outbox{cfg: cfg, store: store, out: out, head: head, log: log}
}

// Drain publishes one batch in insertion order. It stops at the first
// notification that is not final yet or fails to publish, so order is kept.
func (o *Outbox) Drain(ctx context.Context) error {
	pending, err := o.store.ListUnpublished(ctx, o.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list notifications: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	safe, err := o.safeBlock(ctx)
	if err != nil {
		return err
	}

	var published []string
	var emitErr error
	for _, n := range pending {
		if n.BlockNumber > safe {
			break
		}
		if emitErr = o.out.Emit(ctx, n); emitErr != nil {
			break
		}
		published = append(published, n.ID)
	}

	if len(published) > 0 {
		if err := o.store.MarkPublished(ctx, published); err != nil {
			return fmt.Errorf("failed to mark notifications published: %w", err)
		}
		metrics.NotificationsPublished.Add(float64(len(published)))
		o.log.Debug("Published notifications", "count", len(published))
	}
	if emitErr != nil {
		return fmt.Errorf("failed to emit notification: %w", emitErr)
	}
	return nil
}

func (o *Outbox) safeBlock(ctx context.Context) (uint64, error) {
	if o.cfg.Confirmations == 0 || o.head == nil {
		return ^uint64(0), nil
	}
	head, err := o.head.ChainHead(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain head: %w", err)
	}
	if head < o.cfg.Confirmations {
		return 0, nil
	}
	return head - o.cfg.Confirmations, nil
}
