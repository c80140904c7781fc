// Package relay submits queued, pre-authorized requests to the chain and
// records their outcome.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/metrics"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/custody"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
)

// KeyResolver returns the signing key for the sender of a record.
type KeyResolver interface {
	Resolve(ctx context.Context, sender string) (*custody.Signer, error)
}

// Config holds relay configuration
type Config struct {
	Queue         domain.Queue
	Confirmations uint64 // blocks on top of a receipt before it is finalized
	Forward       bool   // enqueue bridge requests for succeeded relay rows
}

// recordTimeout bounds the status write that follows a broadcast.
const recordTimeout = 10 * time.Second

// Relay drains one queue.
type Relay struct {
	cfg    Config
	ledger chain.Ledger
	store  storage.Store
	keys   KeyResolver
	log    *slog.Logger
}

func New(cfg Config, ledger chain.Ledger, store storage.Store, keys KeyResolver, log *slog.Logger) *Relay {
	if cfg.Queue == "" {
		cfg.Queue = domain.QueueRelay
	}
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		cfg:    cfg,
		ledger: ledger,
		store:  store,
		keys:   keys,
		log:    log.With("component", "relay", "queue", cfg.Queue),
	}
}

// SendPendingTransactions runs one relay cycle: SENT rows are reconciled,
// PENDING rows are submitted one at a time, then succeeded rows deep enough
// are finalized. Every record is committed on its own; only a failure to
// list the queue fails the cycle.
func (r *Relay) SendPendingTransactions(ctx context.Context) error {
	sent, err := r.store.ListByStatus(ctx, r.cfg.Queue, domain.TxStatusSent)
	if err != nil {
		return fmt.Errorf("failed to list sent transactions: %w", err)
	}
	for _, tx := range sent {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.reconcile(ctx, tx)
	}

	pending, err := r.store.ListByStatus(ctx, r.cfg.Queue, domain.TxStatusPending)
	if err != nil {
		return fmt.Errorf("failed to list pending transactions: %w", err)
	}
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.send(ctx, tx)
	}

	if err := r.finalize(ctx); err != nil {
		r.log.Warn("Finalization skipped", "error", err)
	}
	return nil
}

// send processes one PENDING record.
func (r *Relay) send(ctx context.Context, tx *domain.RelayTransaction) {
	log := r.log.With("tx_id", tx.TxID, "tx_type", tx.TxType)

	act, err := lookup(tx)
	if err != nil {
		r.fail(ctx, tx, err.Error())
		return
	}
	args, err := act.args(tx)
	if err != nil {
		r.fail(ctx, tx, err.Error())
		return
	}
	contract, err := r.contract(ctx, tx)
	if errors.Is(err, storage.ErrNotFound) {
		r.fail(ctx, tx, "unknown token contract "+tx.ContractAddress)
		return
	}
	if err != nil {
		log.Warn("Token lookup failed, will retry", "error", err)
		return
	}

	signer, err := r.keys.Resolve(ctx, tx.Sender)
	if errors.Is(err, custody.ErrAccountNotFound) || errors.Is(err, custody.ErrSenderMismatch) {
		r.fail(ctx, tx, err.Error())
		return
	}
	if err != nil {
		log.Warn("Signing key unavailable, will retry", "error", err)
		return
	}

	receipt, err := r.ledger.Submit(ctx, signer.Key, contract, act.method, args...)

	// Once broadcast, the outcome is recorded even if the cycle has ended.
	rctx, cancel := recordContext(ctx)
	defer cancel()

	var pendingErr *chain.PendingReceiptError
	if errors.As(err, &pendingErr) {
		log.Warn("Receipt not available, transaction left as sent", "tx_hash", pendingErr.TxHash, "error", err)
		r.markSent(rctx, tx, pendingErr.TxHash)
		return
	}
	if err != nil {
		log.Warn("Submission failed, will retry", "error", err)
		return
	}
	r.complete(rctx, tx, receipt)
}

func recordContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}

// reconcile checks the receipt of a broadcast transaction. SENT rows are
// never submitted again.
func (r *Relay) reconcile(ctx context.Context, tx *domain.RelayTransaction) {
	if tx.TxHash == nil {
		r.log.Error("Sent transaction without hash", "tx_id", tx.TxID)
		return
	}
	receipt, err := r.ledger.Receipt(ctx, *tx.TxHash)
	if errors.Is(err, chain.ErrReceiptNotFound) {
		r.log.Debug("Transaction not mined yet", "tx_id", tx.TxID, "tx_hash", *tx.TxHash)
		return
	}
	if err != nil {
		r.log.Warn("Receipt lookup failed, will retry", "tx_id", tx.TxID, "error", err)
		return
	}
	rctx, cancel := recordContext(ctx)
	defer cancel()
	r.complete(rctx, tx, receipt)
}

// complete records the outcome of a mined or rejected transaction.
func (r *Relay) complete(ctx context.Context, tx *domain.RelayTransaction, receipt *chain.Receipt) {
	if receipt.Reverted {
		r.fail(ctx, tx, "reverted: "+receipt.RevertReason)
		return
	}

	forwards, err := r.forwards(ctx, tx)
	if err != nil {
		// The transaction is mined; keep its hash and retry forwarding
		// through reconciliation.
		r.log.Warn("Forwarding failed, will retry", "tx_id", tx.TxID, "error", err)
		if tx.Status != domain.TxStatusSent {
			r.markSent(ctx, tx, receipt.TxHash)
		}
		return
	}

	hash, block := receipt.TxHash, receipt.BlockNumber
	next := *tx
	next.Status = domain.TxStatusSucceeded
	next.TxHash = &hash
	next.BlockNumber = &block
	next.FailureReason = nil

	err = r.store.WithTx(ctx, func(s storage.Repository) error {
		if err := s.UpdateStatus(ctx, &next); err != nil {
			return err
		}
		for _, f := range forwards {
			if err := s.Enqueue(ctx, f); err != nil && !errors.Is(err, storage.ErrDuplicate) {
				return fmt.Errorf("failed to enqueue %s: %w", f.TxID, err)
			}
		}
		return nil
	})
	if err != nil {
		r.commitFailed(tx, err)
		return
	}
	r.observe(tx, domain.TxStatusSucceeded)
	r.log.Info("Transaction succeeded",
		"tx_id", tx.TxID,
		"tx_type", tx.TxType,
		"tx_hash", hash,
		"block", block,
		"forwarded", len(forwards),
	)
}

// fail moves a record to FAILED. A failed record carries no hash.
func (r *Relay) fail(ctx context.Context, tx *domain.RelayTransaction, reason string) {
	next := *tx
	next.Status = domain.TxStatusFailed
	next.TxHash = nil
	next.BlockNumber = nil
	next.FailureReason = &reason
	if err := r.store.UpdateStatus(ctx, &next); err != nil {
		r.commitFailed(tx, err)
		return
	}
	r.observe(tx, domain.TxStatusFailed)
	r.log.Warn("Transaction failed", "tx_id", tx.TxID, "tx_type", tx.TxType, "reason", reason)
}

func (r *Relay) markSent(ctx context.Context, tx *domain.RelayTransaction, hash string) {
	next := *tx
	next.Status = domain.TxStatusSent
	next.TxHash = &hash
	if err := r.store.UpdateStatus(ctx, &next); err != nil {
		r.commitFailed(tx, err)
		return
	}
	r.observe(tx, domain.TxStatusSent)
}

func (r *Relay) commitFailed(tx *domain.RelayTransaction, err error) {
	if errors.Is(err, storage.ErrStaleTransition) {
		r.log.Warn("Transaction already settled", "tx_id", tx.TxID)
		return
	}
	metrics.DBErrors.WithLabelValues("relay_update").Inc()
	r.log.Error("Failed to record transaction outcome", "tx_id", tx.TxID, "error", err)
}

func (r *Relay) observe(tx *domain.RelayTransaction, status domain.TxStatus) {
	metrics.RelayOutcomes.WithLabelValues(string(r.cfg.Queue), string(tx.TxType), string(status)).Inc()
}

// contract resolves the target of a record. Relay rows address a wrapper
// contract; bridge rows address a registered token.
func (r *Relay) contract(ctx context.Context, tx *domain.RelayTransaction) (chain.Contract, error) {
	if r.cfg.Queue == domain.QueueRelay {
		return chain.Contract{Address: tx.ContractAddress, Kind: chain.KindWrapper}, nil
	}
	token, err := r.store.GetToken(ctx, domain.NormalizeAddress(tx.ContractAddress))
	if err != nil {
		return chain.Contract{}, err
	}
	return chain.TokenContract(token), nil
}

// finalize flags succeeded rows whose receipt is Confirmations deep.
func (r *Relay) finalize(ctx context.Context) error {
	rows, err := r.store.ListUnfinalized(ctx, r.cfg.Queue)
	if err != nil || len(rows) == 0 {
		return err
	}
	head, err := r.ledger.ChainHead(ctx)
	if err != nil {
		return err
	}
	for _, tx := range rows {
		if tx.BlockNumber == nil || *tx.BlockNumber+r.cfg.Confirmations > head {
			continue
		}
		if err := r.store.MarkFinalized(ctx, r.cfg.Queue, tx.TxID); err != nil {
			return err
		}
		r.log.Debug("Transaction finalized", "tx_id", tx.TxID, "block", *tx.BlockNumber)
	}
	return nil
}
