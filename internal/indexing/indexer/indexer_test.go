package indexer

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain/chaintest"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage/memory"
)

var (
	tokenT    = addr("0x00000000000000000000000000000000000000a1")
	exchangeX = addr("0x00000000000000000000000000000000000000e1")
	issuer    = addr("0x0000000000000000000000000000000000000011")
	accountA  = addr("0x0000000000000000000000000000000000000022")
	accountB  = addr("0x0000000000000000000000000000000000000033")
	lockL     = addr("0x0000000000000000000000000000000000000044")
)

func addr(s string) string { return common.HexToAddress(s).Hex() }

type fixture struct {
	ctx    context.Context
	ledger *chaintest.Ledger
	store  *memory.MemoryStorage
	ix     *Indexer
	logIdx uint
}

func newFixture(t *testing.T, cfg Config, tokens ...*domain.Token) *fixture {
	t.Helper()
	f := &fixture{
		ctx:    context.Background(),
		ledger: chaintest.New(),
		store:  memory.NewMemoryStorage(),
	}
	for _, tok := range tokens {
		require.NoError(t, f.store.SaveToken(f.ctx, tok))
	}
	f.ix = New(cfg, f.ledger, f.store, nil)
	return f
}

func shareToken() *domain.Token {
	return &domain.Token{
		Address:       tokenT,
		Type:          domain.TokenTypeShare,
		IssuerAddress: issuer,
		Active:        true,
	}
}

func (f *fixture) emit(category domain.EventCategory, contract string, block uint64, args map[string]any) {
	f.logIdx++
	f.ledger.AddLog(&domain.Event{
		Category:    category,
		Contract:    contract,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block))).Hex(),
		LogIndex:    f.logIdx,
		Args:        args,
	})
}

func (f *fixture) position(t *testing.T, token, account string) *domain.Position {
	t.Helper()
	p, err := f.store.GetPosition(f.ctx, domain.PositionKey{TokenAddress: token, AccountAddress: account})
	require.NoError(t, err)
	return p
}

func (f *fixture) cursor(t *testing.T) uint64 {
	t.Helper()
	c, err := f.store.GetCursor(f.ctx, DefaultCursorName)
	require.NoError(t, err)
	return c.LatestBlockNumber
}

func TestIssueScenario(t *testing.T) {
	f := newFixture(t, Config{}, shareToken())
	f.ledger.SetValue(tokenT, "balanceOf", 100, issuer)
	f.ledger.SetHead(10)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	require.Equal(t, int64(100), f.position(t, tokenT, issuer).Balance)
	tok, err := f.store.GetToken(f.ctx, tokenT)
	require.NoError(t, err)
	require.True(t, tok.InitialPositionSynced)
	require.Equal(t, uint64(10), f.cursor(t))

	// Issue 40 to A; the issuer's balance drops to 60 on chain.
	f.ledger.SetValue(tokenT, "balanceOf", 60, issuer)
	f.ledger.SetValue(tokenT, "balanceOf", 40, accountA)
	f.emit(domain.EventIssue, tokenT, 15, map[string]any{
		"from":          issuer,
		"targetAddress": accountA,
		"lockAddress":   domain.ZeroAddress,
		"amount":        big.NewInt(40),
	})
	f.ledger.SetHead(20)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	require.Equal(t, int64(60), f.position(t, tokenT, issuer).Balance)
	require.Equal(t, int64(40), f.position(t, tokenT, accountA).Balance)
	require.Equal(t, uint64(20), f.cursor(t))
}

func TestIdempotentResync(t *testing.T) {
	f := newFixture(t, Config{}, shareToken())
	f.ledger.SetValue(tokenT, "balanceOf", 70, accountA)
	f.ledger.SetValue(tokenT, "balanceOf", 30, accountB)
	f.ledger.SetValue(tokenT, "lockedOf", 5, lockL, accountA)
	f.emit(domain.EventTransfer, tokenT, 3, map[string]any{
		"from": accountA, "to": accountB, "value": big.NewInt(30),
	})
	f.emit(domain.EventLock, tokenT, 4, map[string]any{
		"accountAddress": accountA, "lockAddress": lockL, "value": big.NewInt(5), "data": "",
	})
	f.ledger.SetHead(5)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	before, err := f.store.ListPositions(f.ctx, tokenT, true)
	require.NoError(t, err)
	lockedBefore, err := f.store.ListLockedPositions(f.ctx, tokenT)
	require.NoError(t, err)

	// Replay the same range.
	require.NoError(t, f.store.ResetCursor(f.ctx, DefaultCursorName, 0))
	require.NoError(t, f.ix.SyncNewLogs(f.ctx))

	after, err := f.store.ListPositions(f.ctx, tokenT, true)
	require.NoError(t, err)
	lockedAfter, err := f.store.ListLockedPositions(f.ctx, tokenT)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, lockedBefore, lockedAfter)

	notices, err := f.store.ListUnpublished(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, notices, 1)
}

func TestConvergesAfterFailedRequery(t *testing.T) {
	f := newFixture(t, Config{}, shareToken())
	f.ledger.SetValue(tokenT, "balanceOf", 10, accountA)
	f.ledger.FailCall(tokenT, "balanceOf", errors.New("rpc unavailable"), accountA)
	f.emit(domain.EventTransfer, tokenT, 2, map[string]any{
		"from": issuer, "to": accountA, "value": big.NewInt(10),
	})
	f.ledger.SetHead(5)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	require.Equal(t, uint64(5), f.cursor(t))
	_, err := f.store.GetPosition(f.ctx, domain.PositionKey{TokenAddress: tokenT, AccountAddress: accountA})
	require.ErrorIs(t, err, storage.ErrNotFound)

	// A later event touching A re-derives the full balance.
	f.ledger.FailCall(tokenT, "balanceOf", nil, accountA)
	f.ledger.SetValue(tokenT, "balanceOf", 15, accountA)
	f.emit(domain.EventTransfer, tokenT, 8, map[string]any{
		"from": issuer, "to": accountA, "value": big.NewInt(5),
	})
	f.ledger.SetHead(10)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	require.Equal(t, int64(15), f.position(t, tokenT, accountA).Balance)
}

func TestNoDoubleSeed(t *testing.T) {
	tok := shareToken()
	tok.InitialPositionSynced = true
	f := newFixture(t, Config{}, tok)
	f.ledger.SetValue(tokenT, "balanceOf", 500, issuer)
	f.ledger.SetHead(1)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	_, err := f.store.GetPosition(f.ctx, domain.PositionKey{TokenAddress: tokenT, AccountAddress: issuer})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSeedRetriedAfterChainError(t *testing.T) {
	f := newFixture(t, Config{}, shareToken())
	f.ledger.FailCall(tokenT, "balanceOf", errors.New("timeout"), issuer)
	f.ledger.SetHead(1)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	tok, err := f.store.GetToken(f.ctx, tokenT)
	require.NoError(t, err)
	require.False(t, tok.InitialPositionSynced)

	f.ledger.SetValue(tokenT, "balanceOf", 100, issuer)
	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	require.Equal(t, int64(100), f.position(t, tokenT, issuer).Balance)
}

func TestSkipWhenCaughtUp(t *testing.T) {
	tok := shareToken()
	tok.InitialPositionSynced = true
	f := newFixture(t, Config{}, tok)
	require.NoError(t, f.store.ResetCursor(f.ctx, DefaultCursorName, 50))
	before, err := f.store.GetCursor(f.ctx, DefaultCursorName)
	require.NoError(t, err)
	f.ledger.SetHead(50)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))

	after, err := f.store.GetCursor(f.ctx, DefaultCursorName)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Empty(t, f.ledger.Calls())
}

func TestGetLogsFailureKeepsCursor(t *testing.T) {
	tok := shareToken()
	tok.InitialPositionSynced = true
	f := newFixture(t, Config{}, tok)
	require.NoError(t, f.store.ResetCursor(f.ctx, DefaultCursorName, 5))
	f.ledger.SetHead(9)
	f.ledger.FailLogs(errors.New("node down"))

	require.Error(t, f.ix.SyncNewLogs(f.ctx))
	require.Equal(t, uint64(5), f.cursor(t))
}

func TestChainHeadFailureAborts(t *testing.T) {
	f := newFixture(t, Config{}, shareToken())
	f.ledger.FailHead(errors.New("node down"))

	require.Error(t, f.ix.SyncNewLogs(f.ctx))
	_, err := f.store.GetCursor(f.ctx, DefaultCursorName)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStartBlockAndMaxRange(t *testing.T) {
	f := newFixture(t, Config{StartBlock: 100, MaxBlockRange: 10})
	f.ledger.SetHead(1000)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	require.Equal(t, uint64(109), f.cursor(t))

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	require.Equal(t, uint64(119), f.cursor(t))
}

func TestZeroPositionsNotCreated(t *testing.T) {
	f := newFixture(t, Config{}, shareToken())
	f.emit(domain.EventTransfer, tokenT, 2, map[string]any{
		"from": accountA, "to": accountB, "value": big.NewInt(0),
	})
	f.ledger.SetHead(2)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	all, err := f.store.ListPositions(f.ctx, tokenT, true)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestFormerHolderRetained(t *testing.T) {
	f := newFixture(t, Config{}, shareToken())
	f.ledger.SetValue(tokenT, "balanceOf", 10, accountA)
	f.emit(domain.EventTransfer, tokenT, 1, map[string]any{
		"from": issuer, "to": accountA, "value": big.NewInt(10),
	})
	f.ledger.SetHead(1)
	require.NoError(t, f.ix.SyncNewLogs(f.ctx))

	f.ledger.SetValue(tokenT, "balanceOf", 0, accountA)
	f.emit(domain.EventTransfer, tokenT, 2, map[string]any{
		"from": accountA, "to": issuer, "value": big.NewInt(10),
	})
	f.ledger.SetHead(2)
	require.NoError(t, f.ix.SyncNewLogs(f.ctx))

	require.True(t, f.position(t, tokenT, accountA).IsZero())
	current, err := f.store.ListPositions(f.ctx, tokenT, false)
	require.NoError(t, err)
	for _, p := range current {
		require.NotEqual(t, accountA, p.AccountAddress)
	}
}

func TestLockUnlockLifecycle(t *testing.T) {
	f := newFixture(t, Config{}, shareToken())
	f.ledger.SetValue(tokenT, "balanceOf", 90, accountA)
	f.ledger.SetValue(tokenT, "lockedOf", 10, lockL, accountA)
	f.emit(domain.EventLock, tokenT, 1, map[string]any{
		"accountAddress": accountA, "lockAddress": lockL, "value": big.NewInt(10), "data": `{"message":"lock"}`,
	})
	f.ledger.SetHead(1)
	require.NoError(t, f.ix.SyncNewLogs(f.ctx))

	key := domain.LockedPositionKey{TokenAddress: tokenT, LockAddress: lockL, AccountAddress: accountA}
	lp, err := f.store.GetLockedPosition(f.ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(10), lp.Value)

	f.ledger.SetValue(tokenT, "lockedOf", 0, lockL, accountA)
	f.ledger.SetValue(tokenT, "balanceOf", 10, accountB)
	f.emit(domain.EventUnlock, tokenT, 2, map[string]any{
		"accountAddress": accountA, "lockAddress": lockL, "recipientAddress": accountB,
		"value": big.NewInt(10), "data": "",
	})
	f.ledger.SetHead(2)
	require.NoError(t, f.ix.SyncNewLogs(f.ctx))

	lp, err = f.store.GetLockedPosition(f.ctx, key)
	require.NoError(t, err)
	require.Zero(t, lp.Value)
	require.Equal(t, int64(10), f.position(t, tokenT, accountB).Balance)

	notices, err := f.store.ListUnpublished(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, notices, 2)
	require.Equal(t, domain.NotificationTypeLockInfo, notices[0].Type)
	require.Equal(t, domain.NotificationTypeUnlockInfo, notices[1].Type)
	require.Equal(t, issuer, notices[0].IssuerAddress)
	require.JSONEq(t,
		`{"lock_address":"`+lockL+`","account_address":"`+accountA+`","value":10,"data":"{\"message\":\"lock\"}"}`,
		string(notices[0].Metainfo))
}

func TestVenueEventsUpdateExchangeAmounts(t *testing.T) {
	tok := shareToken()
	tok.ExchangeAddress = exchangeX
	f := newFixture(t, Config{}, tok)
	tokenAddr := common.HexToAddress(tokenT)
	f.ledger.SetValue(exchangeX, "balanceOf", 7, accountA, tokenAddr)
	f.ledger.SetValue(exchangeX, "commitmentOf", 3, accountA, tokenAddr)
	f.emit(domain.EventNewOrder, exchangeX, 1, map[string]any{
		"tokenAddress": tokenT, "orderId": big.NewInt(1), "accountAddress": accountA,
		"isBuy": false, "price": big.NewInt(100), "amount": big.NewInt(3), "agentAddress": accountB,
	})
	// An order of an unwatched token on the same venue is ignored.
	f.emit(domain.EventNewOrder, exchangeX, 1, map[string]any{
		"tokenAddress": addr("0x00000000000000000000000000000000000000ff"), "orderId": big.NewInt(2),
		"accountAddress": accountB, "isBuy": true, "price": big.NewInt(1), "amount": big.NewInt(1),
		"agentAddress": accountB,
	})
	f.ledger.SetHead(1)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	p := f.position(t, tokenT, accountA)
	require.Equal(t, int64(7), p.ExchangeBalance)
	require.Equal(t, int64(3), p.ExchangeCommitment)
	_, err := f.store.GetPosition(f.ctx, domain.PositionKey{TokenAddress: tokenT, AccountAddress: accountB})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUndecodableEventSkipped(t *testing.T) {
	f := newFixture(t, Config{}, shareToken())
	f.ledger.SetValue(tokenT, "balanceOf", 5, accountB)
	f.ledger.AddLog(&domain.Event{
		Category: domain.EventTransfer, Contract: tokenT, BlockNumber: 1, LogIndex: 1,
		DecodeErr: errors.New("short payload"),
	})
	f.emit(domain.EventTransfer, tokenT, 1, map[string]any{
		"from": issuer, "to": accountB, "value": big.NewInt(5),
	})
	f.ledger.SetHead(1)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	require.Equal(t, int64(5), f.position(t, tokenT, accountB).Balance)
	require.Equal(t, uint64(1), f.cursor(t))
}

func TestOverflowingBalanceSkipped(t *testing.T) {
	f := newFixture(t, Config{}, shareToken())
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	f.ledger.SetOutputs(tokenT, "balanceOf", []any{huge}, accountA)
	f.emit(domain.EventTransfer, tokenT, 1, map[string]any{
		"from": domain.ZeroAddress, "to": accountA, "value": huge,
	})
	f.ledger.SetHead(1)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	_, err := f.store.GetPosition(f.ctx, domain.PositionKey{TokenAddress: tokenT, AccountAddress: accountA})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCancelledCycleKeepsCursor(t *testing.T) {
	tok := shareToken()
	tok.InitialPositionSynced = true
	f := newFixture(t, Config{}, tok)
	f.emit(domain.EventTransfer, tokenT, 1, map[string]any{
		"from": issuer, "to": accountA, "value": big.NewInt(1),
	})
	f.ledger.SetHead(1)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	require.Error(t, f.ix.SyncNewLogs(ctx))
	_, err := f.store.GetCursor(f.ctx, DefaultCursorName)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetStatus(t *testing.T) {
	f := newFixture(t, Config{})
	f.ledger.SetHead(30)
	require.NoError(t, f.store.ResetCursor(f.ctx, DefaultCursorName, 20))

	st, err := f.ix.GetStatus(f.ctx)
	require.NoError(t, err)
	require.True(t, st.Synced)
	require.Equal(t, uint64(20), st.CurrentBlock)
	require.Equal(t, int64(10), st.Lag)
}

func TestLowercaseTokenAddressIsWatched(t *testing.T) {
	tok := shareToken()
	tok.Address = strings.ToLower(tokenT)
	tok.IssuerAddress = strings.ToLower(issuer)
	f := newFixture(t, Config{}, tok)
	f.ledger.SetValue(tokenT, "balanceOf", 25, accountA)
	f.emit(domain.EventTransfer, tokenT, 3, map[string]any{
		"from": issuer, "to": accountA, "value": big.NewInt(25),
	})
	f.ledger.SetHead(5)

	require.NoError(t, f.ix.SyncNewLogs(f.ctx))
	require.Equal(t, uint64(5), f.cursor(t))
	require.Equal(t, int64(25), f.position(t, tokenT, accountA).Balance)

	synced, err := f.store.GetToken(f.ctx, tokenT)
	require.NoError(t, err)
	require.True(t, synced.InitialPositionSynced)
}
