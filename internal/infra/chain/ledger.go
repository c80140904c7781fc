package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

// ErrReceiptNotFound is returned by Receipt while a transaction is not mined.
var ErrReceiptNotFound = errors.New("receipt not found")

// ContractKind selects the built-in ABI of a contract.
type ContractKind string

const (
	KindShare        ContractKind = "share"
	KindStraightBond ContractKind = "straight_bond"
	KindExchange     ContractKind = "exchange"
	KindWrapper      ContractKind = "wrapper"
)

// KindOf returns the contract kind of a token type.
func KindOf(t domain.TokenType) ContractKind {
	if t == domain.TokenTypeStraightBond {
		return KindStraightBond
	}
	return KindShare
}

// Contract identifies a deployed contract and how to talk to it.
type Contract struct {
	Address string
	Kind    ContractKind
	ABI     string // overrides the built-in ABI of Kind when set
}

// TokenContract returns the contract of a registered token.
func TokenContract(t *domain.Token) Contract {
	return Contract{Address: t.Address, Kind: KindOf(t.Type), ABI: t.ABI}
}

// Receipt is the outcome of a mined (or rejected) transaction.
type Receipt struct {
	TxHash       string
	BlockNumber  uint64
	Reverted     bool
	RevertReason string
}

// PendingReceiptError is returned by Submit when the transaction was
// broadcast but no receipt arrived before the deadline.
type PendingReceiptError struct {
	TxHash string
	Err    error
}

func (e *PendingReceiptError) Error() string {
	return fmt.Sprintf("receipt of %s not available: %v", e.TxHash, e.Err)
}

func (e *PendingReceiptError) Unwrap() error { return e.Err }

// Ledger is the boundary between the services and a chain node.
type Ledger interface {
	// ChainHead returns the latest block number.
	ChainHead(ctx context.Context) (uint64, error)

	// GetLogs returns the events of one category emitted by contract in
	// [from, to]. Logs that cannot be decoded are returned with DecodeErr set.
	GetLogs(
		ctx context.Context,
		contract Contract,
		category domain.EventCategory,
		from, to uint64,
	) ([]*domain.Event, error)

	// Call invokes a view function and returns its unpacked outputs.
	Call(ctx context.Context, contract Contract, method string, args ...any) ([]any, error)

	// Submit signs a transaction with key, broadcasts it and waits for the
	// receipt. A contract rejection is reported as a Receipt with Reverted
	// set, not as an error.
	Submit(
		ctx context.Context,
		key *ecdsa.PrivateKey,
		contract Contract,
		method string,
		args ...any,
	) (*Receipt, error)

	// Receipt looks up the receipt of a broadcast transaction.
	Receipt(ctx context.Context, txHash string) (*Receipt, error)
}
