package indexer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/metrics"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain"
)

// snapshot holds the chain values re-queried in one cycle. Keys whose query
// failed are absent.
type snapshot struct {
	positions map[domain.PositionKey]*domain.Position
	locked    map[domain.LockedPositionKey]*domain.LockedPosition
}

// requery reads the current chain value of every key with bounded
// concurrency. Per-key failures are logged and skipped; only a cancelled
// context is returned.
func (ix *Indexer) requery(
	ctx context.Context,
	tokens map[string]*domain.Token,
	positions []domain.PositionKey,
	locked []domain.LockedPositionKey,
) (*snapshot, error) {
	posOut := make([]*domain.Position, len(positions))
	lockOut := make([]*domain.LockedPosition, len(locked))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Concurrency)

	for i, key := range positions {
		g.Go(func() error {
			p, err := ix.queryPosition(gctx, tokens[key.TokenAddress], key.AccountAddress)
			if err != nil {
				ix.requeryFailed(err, "token", key.TokenAddress, "account", key.AccountAddress)
				return nil
			}
			posOut[i] = p
			return nil
		})
	}
	for i, key := range locked {
		g.Go(func() error {
			p, err := ix.queryLocked(gctx, tokens[key.TokenAddress], key.LockAddress, key.AccountAddress)
			if err != nil {
				ix.requeryFailed(err, "token", key.TokenAddress, "lock", key.LockAddress, "account", key.AccountAddress)
				return nil
			}
			lockOut[i] = p
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("re-query aborted: %w", err)
	}

	snap := &snapshot{
		positions: make(map[domain.PositionKey]*domain.Position, len(posOut)),
		locked:    make(map[domain.LockedPositionKey]*domain.LockedPosition, len(lockOut)),
	}
	for _, p := range posOut {
		if p != nil {
			snap.positions[p.Key()] = p
		}
	}
	for _, p := range lockOut {
		if p != nil {
			snap.locked[p.Key()] = p
		}
	}
	return snap, nil
}

func (ix *Indexer) requeryFailed(err error, attrs ...any) {
	metrics.EventErrors.WithLabelValues("requery").Inc()
	ix.log.Warn("Re-query failed, skipping", append(attrs, slog.Any("error", err))...)
}

// queryPosition reads every amount of a Position from the chain.
func (ix *Indexer) queryPosition(ctx context.Context, token *domain.Token, account string) (*domain.Position, error) {
	tc := chain.TokenContract(token)
	acc := common.HexToAddress(account)

	p := &domain.Position{TokenAddress: token.Address, AccountAddress: account}
	var err error
	if p.Balance, err = ix.callInt(ctx, tc, "balanceOf", acc); err != nil {
		return nil, err
	}
	if p.PendingTransfer, err = ix.callInt(ctx, tc, "pendingTransfer", acc); err != nil {
		return nil, err
	}

	if token.HasExchange() {
		ex := chain.Contract{Address: token.ExchangeAddress, Kind: chain.KindExchange}
		tokenAddr := common.HexToAddress(token.Address)
		if p.ExchangeBalance, err = ix.callInt(ctx, ex, "balanceOf", acc, tokenAddr); err != nil {
			return nil, err
		}
		if p.ExchangeCommitment, err = ix.callInt(ctx, ex, "commitmentOf", acc, tokenAddr); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (ix *Indexer) queryLocked(
	ctx context.Context,
	token *domain.Token,
	lock, account string,
) (*domain.LockedPosition, error) {
	value, err := ix.callInt(ctx, chain.TokenContract(token), "lockedOf",
		common.HexToAddress(lock), common.HexToAddress(account))
	if err != nil {
		return nil, err
	}
	return &domain.LockedPosition{
		TokenAddress:   token.Address,
		LockAddress:    lock,
		AccountAddress: account,
		Value:          value,
	}, nil
}

func (ix *Indexer) callInt(ctx context.Context, c chain.Contract, method string, args ...any) (int64, error) {
	out, err := ix.ledger.Call(ctx, c, method, args...)
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("%s returned nothing", method)
	}
	v, err := toInt64(out[0])
	if err != nil {
		return 0, fmt.Errorf("%s: %w", method, err)
	}
	return v, nil
}
