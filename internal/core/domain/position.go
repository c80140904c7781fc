package domain

import "time"

// PositionKey identifies a Position row.
type PositionKey struct {
	TokenAddress   string
	AccountAddress string
}

// Position is the cached snapshot of an account's holdings of one token.
type Position struct {
	TokenAddress       string    `db:"token_address"`
	AccountAddress     string    `db:"account_address"`
	Balance            int64     `db:"balance"`
	ExchangeBalance    int64     `db:"exchange_balance"`
	ExchangeCommitment int64     `db:"exchange_commitment"`
	PendingTransfer    int64     `db:"pending_transfer"`
	ModifiedAt         time.Time `db:"modified_at"`
}

func (p *Position) Key() PositionKey {
	return PositionKey{TokenAddress: p.TokenAddress, AccountAddress: p.AccountAddress}
}

// IsZero reports whether every amount is zero (a former holder).
func (p *Position) IsZero() bool {
	return p.Balance == 0 && p.ExchangeBalance == 0 &&
		p.ExchangeCommitment == 0 && p.PendingTransfer == 0
}

// SameAmounts compares the amounts of two positions, ignoring timestamps.
func (p *Position) SameAmounts(o *Position) bool {
	return p.Balance == o.Balance &&
		p.ExchangeBalance == o.ExchangeBalance &&
		p.ExchangeCommitment == o.ExchangeCommitment &&
		p.PendingTransfer == o.PendingTransfer
}

// LockedPositionKey identifies a LockedPosition row.
type LockedPositionKey struct {
	TokenAddress   string
	LockAddress    string
	AccountAddress string
}

// LockedPosition is the amount an account has escrowed to one lock holder.
// A row that drops to zero is kept.
type LockedPosition struct {
	TokenAddress   string    `db:"token_address"`
	LockAddress    string    `db:"lock_address"`
	AccountAddress string    `db:"account_address"`
	Value          int64     `db:"value"`
	ModifiedAt     time.Time `db:"modified_at"`
}

func (p *LockedPosition) Key() LockedPositionKey {
	return LockedPositionKey{
		TokenAddress:   p.TokenAddress,
		LockAddress:    p.LockAddress,
		AccountAddress: p.AccountAddress,
	}
}
