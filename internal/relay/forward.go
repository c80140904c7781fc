package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/chain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
)

// bridgeSuffix is appended to the tx_id of a forwarded request.
const bridgeSuffix = "-bridge"

// forwards returns the bridge requests implied by a succeeded relay
// transaction. Transactions on a contract that wraps no registered token
// forward nothing.
func (r *Relay) forwards(ctx context.Context, tx *domain.RelayTransaction) ([]*domain.RelayTransaction, error) {
	if !r.cfg.Forward {
		return nil, nil
	}
	if tx.TxType != domain.TxTypeBurn && tx.TxType != domain.TxTypeAcceptTrade {
		return nil, nil
	}

	token, err := r.store.FindTokenByWrapper(ctx, domain.NormalizeAddress(tx.ContractAddress))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wrapped token: %w", err)
	}

	data, err := json.Marshal(map[string]string{"origin_tx_id": tx.TxID})
	if err != nil {
		return nil, err
	}

	var (
		txType domain.TxType
		params any
	)
	switch tx.TxType {
	case domain.TxTypeBurn:
		var p domain.BurnParams
		if err := json.Unmarshal(tx.Params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		account := domain.NormalizeAddress(p.FromAddress)
		txType = domain.TxTypeForceUnlock
		params = domain.ForceUnlockParams{
			LockAddress:      token.IssuerAddress,
			AccountAddress:   account,
			RecipientAddress: account,
			Value:            p.Value,
			Data:             string(data),
		}

	case domain.TxTypeAcceptTrade:
		var p domain.TradeIndexParams
		if err := json.Unmarshal(tx.Params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		seller, buyer, value, err := r.trade(ctx, tx.ContractAddress, p.Index)
		if err != nil {
			return nil, err
		}
		txType = domain.TxTypeForceChangeLockedAccount
		params = domain.ForceChangeLockedAccountParams{
			LockAddress:          token.IssuerAddress,
			BeforeAccountAddress: seller,
			AfterAccountAddress:  buyer,
			Value:                value,
			Data:                 string(data),
		}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return []*domain.RelayTransaction{{
		TxID:            tx.TxID + bridgeSuffix,
		Queue:           domain.QueueBridge,
		TxType:          txType,
		ContractAddress: token.Address,
		Params:          raw,
		Sender:          token.IssuerAddress,
		Authorizer:      tx.Authorizer,
	}}, nil
}

// trade reads the settled trade at index from the wrapper contract.
func (r *Relay) trade(ctx context.Context, wrapper string, index int64) (seller, buyer string, value int64, err error) {
	out, err := r.ledger.Call(ctx, chain.Contract{Address: wrapper, Kind: chain.KindWrapper}, "getTrade", big.NewInt(index))
	if err != nil {
		return "", "", 0, fmt.Errorf("failed to read trade %d: %w", index, err)
	}
	if len(out) < 6 {
		return "", "", 0, fmt.Errorf("getTrade returned %d values", len(out))
	}
	sellerAddr, ok1 := out[0].(common.Address)
	buyerAddr, ok2 := out[1].(common.Address)
	stValue, ok3 := out[5].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !stValue.IsInt64() {
		return "", "", 0, fmt.Errorf("unexpected getTrade output %v", out)
	}
	return sellerAddr.Hex(), buyerAddr.Hex(), stValue.Int64(), nil
}
