package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

var (
	// ErrUnknownTxType is returned for a tx_type the queue cannot dispatch.
	ErrUnknownTxType = errors.New("unknown tx_type")

	// ErrInvalidParams is returned when tx_params do not match the tx_type.
	ErrInvalidParams = errors.New("invalid tx_params")
)

// action maps a tx_type to a contract method and its arguments.
type action struct {
	method string
	args   func(tx *domain.RelayTransaction) ([]any, error)
}

// actions is the dispatch table per queue. The two sets are disjoint.
var actions = map[domain.Queue]map[domain.TxType]action{
	domain.QueueRelay: {
		domain.TxTypeMint: {"mintWithAuthorization", authorized(func(p domain.MintParams) ([]any, error) {
			return []any{address(p.ToAddress), amount(p.Value)}, nil
		})},
		domain.TxTypeBurn: {"burnWithAuthorization", authorized(func(p domain.BurnParams) ([]any, error) {
			return []any{address(p.FromAddress), amount(p.Value)}, nil
		})},
		domain.TxTypeAddWhitelist: {"addAccountWhiteListWithAuthorization", authorized(whitelistArgs)},
		domain.TxTypeDeleteWhitelist: {"deleteAccountWhiteListWithAuthorization", authorized(whitelistArgs)},
		domain.TxTypeRequestTrade: {"requestTradeWithAuthorization", authorized(func(p domain.RequestTradeParams) ([]any, error) {
			return []any{
				address(p.SellerSTAccountAddress),
				address(p.BuyerSTAccountAddress),
				address(p.SCTokenAddress),
				address(p.SellerSCAccountAddress),
				address(p.BuyerSCAccountAddress),
				amount(p.STValue),
				amount(p.SCValue),
				p.Memo,
			}, nil
		})},
		domain.TxTypeCancelTrade: {"cancelTradeWithAuthorization", authorized(tradeIndexArgs)},
		domain.TxTypeAcceptTrade: {"acceptTradeWithAuthorization", authorized(tradeIndexArgs)},
		domain.TxTypeRejectTrade: {"rejectTradeWithAuthorization", authorized(tradeIndexArgs)},
	},
	domain.QueueBridge: {
		domain.TxTypeForceUnlock: {"forceUnlock", direct(func(p domain.ForceUnlockParams) ([]any, error) {
			return []any{
				address(p.LockAddress),
				address(p.AccountAddress),
				address(p.RecipientAddress),
				amount(p.Value),
				p.Data,
			}, nil
		})},
		domain.TxTypeForceChangeLockedAccount: {"forceChangeLockedAccount", direct(func(p domain.ForceChangeLockedAccountParams) ([]any, error) {
			return []any{
				address(p.LockAddress),
				address(p.BeforeAccountAddress),
				address(p.AfterAccountAddress),
				amount(p.Value),
				p.Data,
			}, nil
		})},
	},
}

// lookup returns the action of tx or ErrUnknownTxType.
func lookup(tx *domain.RelayTransaction) (action, error) {
	a, ok := actions[tx.Queue][tx.TxType]
	if !ok {
		return action{}, fmt.Errorf("%w: %q on queue %s", ErrUnknownTxType, tx.TxType, tx.Queue)
	}
	return a, nil
}

func whitelistArgs(p domain.WhitelistParams) ([]any, error) {
	return []any{address(p.AccountAddress)}, nil
}

func tradeIndexArgs(p domain.TradeIndexParams) ([]any, error) {
	return []any{big.NewInt(p.Index)}, nil
}

// direct decodes tx_params into P and builds the arguments from them.
func direct[P any](build func(P) ([]any, error)) func(*domain.RelayTransaction) ([]any, error) {
	return func(tx *domain.RelayTransaction) ([]any, error) {
		var p P
		if err := json.Unmarshal(tx.Params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		args, err := build(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		for _, a := range args {
			if v, ok := a.(*big.Int); ok && v.Sign() < 0 {
				return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidParams, v)
			}
		}
		return args, nil
	}
}

// authorized is direct followed by the stored authorization (nonce, v, r, s).
func authorized[P any](build func(P) ([]any, error)) func(*domain.RelayTransaction) ([]any, error) {
	inner := direct(build)
	return func(tx *domain.RelayTransaction) ([]any, error) {
		if tx.Authorization == nil {
			return nil, fmt.Errorf("%w: missing authorization", ErrInvalidParams)
		}
		args, err := inner(tx)
		if err != nil {
			return nil, err
		}
		auth := tx.Authorization
		return append(args,
			[32]byte(common.HexToHash(auth.Nonce)),
			auth.V,
			[32]byte(common.HexToHash(auth.R)),
			[32]byte(common.HexToHash(auth.S)),
		), nil
	}
}

func address(s string) common.Address {
	return common.HexToAddress(s)
}

func amount(v int64) *big.Int {
	return big.NewInt(v)
}
