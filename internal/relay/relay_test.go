package relay

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain/chaintest"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/custody"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage/memory"
)

var (
	wrapperW = addr("0x00000000000000000000000000000000000000b1")
	tokenT   = addr("0x00000000000000000000000000000000000000a1")
	accountA = addr("0x0000000000000000000000000000000000000022")
	accountB = addr("0x0000000000000000000000000000000000000033")
)

func addr(s string) string { return common.HexToAddress(s).Hex() }

type fixture struct {
	ctx    context.Context
	ledger *chaintest.Ledger
	store  *memory.MemoryStorage
	signer *custody.Signer
	seq    int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fixture{
		ctx:    context.Background(),
		ledger: chaintest.New(),
		store:  memory.NewMemoryStorage(),
		signer: &custody.Signer{Address: crypto.PubkeyToAddress(key.PublicKey), Key: key},
	}
}

func (f *fixture) relay(cfg Config) *Relay {
	return New(cfg, f.ledger, f.store, custody.NewStaticKey(f.signer), nil)
}

// enqueue inserts a relay-queue row on the wrapper contract.
func (f *fixture) enqueue(t *testing.T, id string, txType domain.TxType, params any) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	f.seq++
	require.NoError(t, f.store.Enqueue(f.ctx, &domain.RelayTransaction{
		TxID:            id,
		Queue:           domain.QueueRelay,
		TxType:          txType,
		ContractAddress: wrapperW,
		Params:          raw,
		Authorizer:      accountA,
		Authorization: &domain.Authorization{
			Nonce: "0x" + common.Bytes2Hex(common.LeftPadBytes([]byte{byte(f.seq)}, 32)),
			V:     27,
			R:     "0x01",
			S:     "0x02",
		},
		CreatedAt: time.Unix(int64(f.seq), 0),
	}))
}

func (f *fixture) get(t *testing.T, q domain.Queue, id string) *domain.RelayTransaction {
	t.Helper()
	tx, err := f.store.GetRelayTransaction(f.ctx, q, id)
	require.NoError(t, err)
	return tx
}

func (f *fixture) registerWrappedToken(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.SaveToken(f.ctx, &domain.Token{
		Address:        tokenT,
		Type:           domain.TokenTypeShare,
		IssuerAddress:  f.signer.Address.Hex(),
		WrapperAddress: wrapperW,
		Active:         true,
	}))
}

func TestSendPendingTransactions_Mint(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "tx-1", domain.TxTypeMint, domain.MintParams{ToAddress: accountA, Value: 1000})

	require.NoError(t, f.relay(Config{}).SendPendingTransactions(f.ctx))

	tx := f.get(t, domain.QueueRelay, "tx-1")
	require.Equal(t, domain.TxStatusSucceeded, tx.Status)
	require.NotNil(t, tx.TxHash)
	require.NotNil(t, tx.BlockNumber)
	require.Equal(t, uint64(101), *tx.BlockNumber)

	subs := f.ledger.Submissions()
	require.Len(t, subs, 1)
	require.Equal(t, "mintWithAuthorization", subs[0].Method)
	require.Equal(t, wrapperW, subs[0].Contract)
	require.Equal(t, f.signer.Address.Hex(), subs[0].From)
	require.Len(t, subs[0].Args, 6)
	require.Equal(t, common.HexToAddress(accountA), subs[0].Args[0])
	require.Equal(t, big.NewInt(1000), subs[0].Args[1])
	require.Equal(t, uint8(27), subs[0].Args[3])
	require.Equal(t, [32]byte(common.HexToHash("0x01")), subs[0].Args[4])
}

func TestSendPendingTransactions_UnknownTypeFailsWithoutChainCall(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "tx-1", domain.TxType("TELEPORT"), map[string]string{})
	f.enqueue(t, "tx-2", domain.TxTypeForceUnlock, domain.ForceUnlockParams{})

	require.NoError(t, f.relay(Config{}).SendPendingTransactions(f.ctx))

	for _, id := range []string{"tx-1", "tx-2"} {
		tx := f.get(t, domain.QueueRelay, id)
		require.Equal(t, domain.TxStatusFailed, tx.Status)
		require.Nil(t, tx.TxHash)
		require.Contains(t, *tx.FailureReason, "unknown tx_type")
	}
	require.Empty(t, f.ledger.Submissions())
}

func TestSendPendingTransactions_BurnRevert(t *testing.T) {
	f := newFixture(t)
	f.ledger.OnSubmit(func(s chaintest.Submission) (*chain.Receipt, error) {
		return &chain.Receipt{Reverted: true, RevertReason: "insufficient balance"}, nil
	})
	f.enqueue(t, "tx-1", domain.TxTypeBurn, domain.BurnParams{FromAddress: accountA, Value: 1000})

	require.NoError(t, f.relay(Config{}).SendPendingTransactions(f.ctx))

	tx := f.get(t, domain.QueueRelay, "tx-1")
	require.Equal(t, domain.TxStatusFailed, tx.Status)
	require.Nil(t, tx.TxHash)
	require.Nil(t, tx.BlockNumber)
	require.Contains(t, *tx.FailureReason, "insufficient balance")
}

func TestSendPendingTransactions_InvalidParams(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "negative", domain.TxTypeMint, domain.MintParams{ToAddress: accountA, Value: -1})
	f.enqueue(t, "malformed", domain.TxTypeCancelTrade, map[string]string{"index": "seven"})

	require.NoError(t, f.relay(Config{}).SendPendingTransactions(f.ctx))

	require.Equal(t, domain.TxStatusFailed, f.get(t, domain.QueueRelay, "negative").Status)
	require.Equal(t, domain.TxStatusFailed, f.get(t, domain.QueueRelay, "malformed").Status)
	require.Empty(t, f.ledger.Submissions())
}

func TestSendPendingTransactions_MissingAuthorization(t *testing.T) {
	f := newFixture(t)
	raw, _ := json.Marshal(domain.WhitelistParams{AccountAddress: accountA})
	require.NoError(t, f.store.Enqueue(f.ctx, &domain.RelayTransaction{
		TxID:            "tx-1",
		Queue:           domain.QueueRelay,
		TxType:          domain.TxTypeAddWhitelist,
		ContractAddress: wrapperW,
		Params:          raw,
	}))

	require.NoError(t, f.relay(Config{}).SendPendingTransactions(f.ctx))

	tx := f.get(t, domain.QueueRelay, "tx-1")
	require.Equal(t, domain.TxStatusFailed, tx.Status)
	require.Contains(t, *tx.FailureReason, "missing authorization")
}

func TestSendPendingTransactions_TerminalStatesNeverChange(t *testing.T) {
	f := newFixture(t)
	calls := 0
	f.ledger.OnSubmit(func(s chaintest.Submission) (*chain.Receipt, error) {
		calls++
		if s.Method == "burnWithAuthorization" {
			return &chain.Receipt{Reverted: true}, nil
		}
		return &chain.Receipt{TxHash: "0xaa", BlockNumber: 7}, nil
	})
	f.enqueue(t, "ok", domain.TxTypeMint, domain.MintParams{ToAddress: accountA, Value: 1})
	f.enqueue(t, "ko", domain.TxTypeBurn, domain.BurnParams{FromAddress: accountA, Value: 1})
	r := f.relay(Config{})

	require.NoError(t, r.SendPendingTransactions(f.ctx))
	require.Equal(t, 2, calls)

	for range 3 {
		require.NoError(t, r.SendPendingTransactions(f.ctx))
	}
	require.Equal(t, 2, calls)
	require.Equal(t, domain.TxStatusSucceeded, f.get(t, domain.QueueRelay, "ok").Status)
	require.Equal(t, domain.TxStatusFailed, f.get(t, domain.QueueRelay, "ko").Status)
}

func TestSendPendingTransactions_TransientErrorStaysPending(t *testing.T) {
	f := newFixture(t)
	down := true
	f.ledger.OnSubmit(func(s chaintest.Submission) (*chain.Receipt, error) {
		if down {
			return nil, errors.New("connection refused")
		}
		return &chain.Receipt{TxHash: "0xaa", BlockNumber: 7}, nil
	})
	f.enqueue(t, "tx-1", domain.TxTypeMint, domain.MintParams{ToAddress: accountA, Value: 1})
	r := f.relay(Config{})

	require.NoError(t, r.SendPendingTransactions(f.ctx))
	tx := f.get(t, domain.QueueRelay, "tx-1")
	require.Equal(t, domain.TxStatusPending, tx.Status)
	require.Nil(t, tx.FailureReason)

	down = false
	require.NoError(t, r.SendPendingTransactions(f.ctx))
	require.Equal(t, domain.TxStatusSucceeded, f.get(t, domain.QueueRelay, "tx-1").Status)
}

func TestSendPendingTransactions_OneFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	f.ledger.OnSubmit(func(s chaintest.Submission) (*chain.Receipt, error) {
		if s.Args[0] == common.HexToAddress(accountA) {
			return nil, errors.New("timeout")
		}
		return &chain.Receipt{TxHash: "0xbb", BlockNumber: 9}, nil
	})
	f.enqueue(t, "first", domain.TxTypeMint, domain.MintParams{ToAddress: accountA, Value: 1})
	f.enqueue(t, "second", domain.TxTypeMint, domain.MintParams{ToAddress: accountB, Value: 1})

	require.NoError(t, f.relay(Config{}).SendPendingTransactions(f.ctx))

	require.Equal(t, domain.TxStatusPending, f.get(t, domain.QueueRelay, "first").Status)
	require.Equal(t, domain.TxStatusSucceeded, f.get(t, domain.QueueRelay, "second").Status)
}

func TestSendPendingTransactions_SentIsReconciledNotResubmitted(t *testing.T) {
	f := newFixture(t)
	f.ledger.OnSubmit(func(s chaintest.Submission) (*chain.Receipt, error) {
		return nil, &chain.PendingReceiptError{TxHash: "0xcc", Err: context.DeadlineExceeded}
	})
	f.enqueue(t, "tx-1", domain.TxTypeMint, domain.MintParams{ToAddress: accountA, Value: 1})
	r := f.relay(Config{})

	require.NoError(t, r.SendPendingTransactions(f.ctx))
	tx := f.get(t, domain.QueueRelay, "tx-1")
	require.Equal(t, domain.TxStatusSent, tx.Status)
	require.Equal(t, "0xcc", *tx.TxHash)

	// Not mined yet
	require.NoError(t, r.SendPendingTransactions(f.ctx))
	require.Equal(t, domain.TxStatusSent, f.get(t, domain.QueueRelay, "tx-1").Status)
	require.Len(t, f.ledger.Submissions(), 1)

	f.ledger.SetReceipt(&chain.Receipt{TxHash: "0xcc", BlockNumber: 55})
	require.NoError(t, r.SendPendingTransactions(f.ctx))
	tx = f.get(t, domain.QueueRelay, "tx-1")
	require.Equal(t, domain.TxStatusSucceeded, tx.Status)
	require.Equal(t, uint64(55), *tx.BlockNumber)
	require.Len(t, f.ledger.Submissions(), 1)
}

func TestSendPendingTransactions_SentReverted(t *testing.T) {
	f := newFixture(t)
	f.ledger.OnSubmit(func(s chaintest.Submission) (*chain.Receipt, error) {
		return nil, &chain.PendingReceiptError{TxHash: "0xdd", Err: context.DeadlineExceeded}
	})
	f.enqueue(t, "tx-1", domain.TxTypeBurn, domain.BurnParams{FromAddress: accountA, Value: 1})
	r := f.relay(Config{})
	require.NoError(t, r.SendPendingTransactions(f.ctx))

	f.ledger.SetReceipt(&chain.Receipt{TxHash: "0xdd", BlockNumber: 56, Reverted: true, RevertReason: "transaction reverted"})
	require.NoError(t, r.SendPendingTransactions(f.ctx))

	tx := f.get(t, domain.QueueRelay, "tx-1")
	require.Equal(t, domain.TxStatusFailed, tx.Status)
	require.Nil(t, tx.TxHash)
}

func TestSendPendingTransactions_ForwardBurn(t *testing.T) {
	f := newFixture(t)
	f.registerWrappedToken(t)
	f.enqueue(t, "tx-1", domain.TxTypeBurn, domain.BurnParams{FromAddress: accountA, Value: 40})

	require.NoError(t, f.relay(Config{Forward: true}).SendPendingTransactions(f.ctx))
	require.Equal(t, domain.TxStatusSucceeded, f.get(t, domain.QueueRelay, "tx-1").Status)

	fwd := f.get(t, domain.QueueBridge, "tx-1-bridge")
	require.Equal(t, domain.TxStatusPending, fwd.Status)
	require.Equal(t, domain.TxTypeForceUnlock, fwd.TxType)
	require.Equal(t, tokenT, fwd.ContractAddress)
	require.Equal(t, f.signer.Address.Hex(), fwd.Sender)

	var p domain.ForceUnlockParams
	require.NoError(t, json.Unmarshal(fwd.Params, &p))
	require.Equal(t, f.signer.Address.Hex(), p.LockAddress)
	require.Equal(t, accountA, p.AccountAddress)
	require.Equal(t, accountA, p.RecipientAddress)
	require.Equal(t, int64(40), p.Value)
	require.Contains(t, p.Data, "tx-1")

	// The bridge relay mirrors it onto the token contract.
	bridge := f.relay(Config{Queue: domain.QueueBridge})
	require.NoError(t, bridge.SendPendingTransactions(f.ctx))
	require.Equal(t, domain.TxStatusSucceeded, f.get(t, domain.QueueBridge, "tx-1-bridge").Status)

	subs := f.ledger.Submissions()
	require.Len(t, subs, 2)
	require.Equal(t, "forceUnlock", subs[1].Method)
	require.Equal(t, tokenT, subs[1].Contract)
	require.Equal(t, big.NewInt(40), subs[1].Args[3])
}

func TestSendPendingTransactions_ForwardAcceptTrade(t *testing.T) {
	f := newFixture(t)
	f.registerWrappedToken(t)
	f.ledger.SetOutputs(wrapperW, "getTrade", []any{
		common.HexToAddress(accountA),
		common.HexToAddress(accountB),
		common.Address{},
		common.Address{},
		common.Address{},
		big.NewInt(30),
		big.NewInt(3000),
		"executed",
		"",
	}, big.NewInt(7))
	f.enqueue(t, "tx-1", domain.TxTypeAcceptTrade, domain.TradeIndexParams{Index: 7})

	require.NoError(t, f.relay(Config{Forward: true}).SendPendingTransactions(f.ctx))

	fwd := f.get(t, domain.QueueBridge, "tx-1-bridge")
	require.Equal(t, domain.TxTypeForceChangeLockedAccount, fwd.TxType)
	var p domain.ForceChangeLockedAccountParams
	require.NoError(t, json.Unmarshal(fwd.Params, &p))
	require.Equal(t, accountA, p.BeforeAccountAddress)
	require.Equal(t, accountB, p.AfterAccountAddress)
	require.Equal(t, int64(30), p.Value)
}

func TestSendPendingTransactions_ForwardFailureKeepsHash(t *testing.T) {
	f := newFixture(t)
	f.registerWrappedToken(t)
	f.ledger.FailCall(wrapperW, "getTrade", errors.New("rpc down"), big.NewInt(7))
	f.enqueue(t, "tx-1", domain.TxTypeAcceptTrade, domain.TradeIndexParams{Index: 7})
	r := f.relay(Config{Forward: true})

	require.NoError(t, r.SendPendingTransactions(f.ctx))
	tx := f.get(t, domain.QueueRelay, "tx-1")
	require.Equal(t, domain.TxStatusSent, tx.Status)
	require.NotNil(t, tx.TxHash)

	f.ledger.SetReceipt(&chain.Receipt{TxHash: *tx.TxHash, BlockNumber: 101})
	f.ledger.SetOutputs(wrapperW, "getTrade", []any{
		common.HexToAddress(accountA), common.HexToAddress(accountB),
		common.Address{}, common.Address{}, common.Address{},
		big.NewInt(5), big.NewInt(0), "executed", "",
	}, big.NewInt(7))

	require.NoError(t, r.SendPendingTransactions(f.ctx))
	require.Equal(t, domain.TxStatusSucceeded, f.get(t, domain.QueueRelay, "tx-1").Status)
	require.Len(t, f.ledger.Submissions(), 1)
	f.get(t, domain.QueueBridge, "tx-1-bridge")
}

func TestSendPendingTransactions_NoForwardWithoutWrappedToken(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "tx-1", domain.TxTypeBurn, domain.BurnParams{FromAddress: accountA, Value: 1})

	require.NoError(t, f.relay(Config{Forward: true}).SendPendingTransactions(f.ctx))

	require.Equal(t, domain.TxStatusSucceeded, f.get(t, domain.QueueRelay, "tx-1").Status)
	bridged, err := f.store.ListByStatus(f.ctx, domain.QueueBridge, domain.TxStatusPending)
	require.NoError(t, err)
	require.Empty(t, bridged)
}

func TestSendPendingTransactions_BridgeSenderAndToken(t *testing.T) {
	f := newFixture(t)
	f.registerWrappedToken(t)
	raw, _ := json.Marshal(domain.ForceUnlockParams{LockAddress: accountB, AccountAddress: accountA, RecipientAddress: accountA, Value: 1})
	for _, tx := range []*domain.RelayTransaction{
		{TxID: "mismatch", TxType: domain.TxTypeForceUnlock, ContractAddress: tokenT, Sender: accountB},
		{TxID: "no-token", TxType: domain.TxTypeForceUnlock, ContractAddress: accountB, Sender: f.signer.Address.Hex()},
		{TxID: "relay-type", TxType: domain.TxTypeMint, ContractAddress: tokenT, Sender: f.signer.Address.Hex()},
	} {
		tx.Queue = domain.QueueBridge
		tx.Params = raw
		require.NoError(t, f.store.Enqueue(f.ctx, tx))
	}

	require.NoError(t, f.relay(Config{Queue: domain.QueueBridge}).SendPendingTransactions(f.ctx))

	for _, id := range []string{"mismatch", "no-token", "relay-type"} {
		require.Equal(t, domain.TxStatusFailed, f.get(t, domain.QueueBridge, id).Status, id)
	}
	require.Empty(t, f.ledger.Submissions())
}

func TestSendPendingTransactions_Finalize(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "tx-1", domain.TxTypeMint, domain.MintParams{ToAddress: accountA, Value: 1})
	r := f.relay(Config{Confirmations: 5})

	f.ledger.SetHead(105)
	require.NoError(t, r.SendPendingTransactions(f.ctx))
	tx := f.get(t, domain.QueueRelay, "tx-1")
	require.Equal(t, domain.TxStatusSucceeded, tx.Status)
	require.False(t, tx.Finalized)

	f.ledger.SetHead(106)
	require.NoError(t, r.SendPendingTransactions(f.ctx))
	require.True(t, f.get(t, domain.QueueRelay, "tx-1").Finalized)
}

func TestSendPendingTransactions_CancelledCycle(t *testing.T) {
	f := newFixture(t)
	f.enqueue(t, "tx-1", domain.TxTypeMint, domain.MintParams{ToAddress: accountA, Value: 1})
	ctx, cancel := context.WithCancel(f.ctx)
	cancel()

	err := f.relay(Config{}).SendPendingTransactions(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, domain.TxStatusPending, f.get(t, domain.QueueRelay, "tx-1").Status)
}

func TestSendPendingTransactions_OutcomeRecordedAfterCycleDeadline(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(f.ctx)
	defer cancel()
	f.ledger.OnSubmit(func(s chaintest.Submission) (*chain.Receipt, error) {
		cancel()
		return &chain.Receipt{TxHash: "0xabc", BlockNumber: 101}, nil
	})
	f.enqueue(t, "tx-1", domain.TxTypeMint, domain.MintParams{ToAddress: accountA, Value: 1})
	r := f.relay(Config{})

	_ = r.SendPendingTransactions(ctx)

	tx := f.get(t, domain.QueueRelay, "tx-1")
	require.Equal(t, domain.TxStatusSucceeded, tx.Status)
	require.Equal(t, "0xabc", *tx.TxHash)

	require.NoError(t, r.SendPendingTransactions(f.ctx))
	require.Len(t, f.ledger.Submissions(), 1)
}

func TestSendPendingTransactions_SentRecordedAfterCycleDeadline(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(f.ctx)
	defer cancel()
	f.ledger.OnSubmit(func(s chaintest.Submission) (*chain.Receipt, error) {
		cancel()
		return nil, &chain.PendingReceiptError{TxHash: "0xdef", Err: context.DeadlineExceeded}
	})
	f.enqueue(t, "tx-1", domain.TxTypeMint, domain.MintParams{ToAddress: accountA, Value: 1})
	r := f.relay(Config{})

	_ = r.SendPendingTransactions(ctx)

	tx := f.get(t, domain.QueueRelay, "tx-1")
	require.Equal(t, domain.TxStatusSent, tx.Status)
	require.Equal(t, "0xdef", *tx.TxHash)

	require.NoError(t, r.SendPendingTransactions(f.ctx))
	require.Len(t, f.ledger.Submissions(), 1)
}
