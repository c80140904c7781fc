package domain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type TokenType string

const (
	TokenTypeStraightBond TokenType = "IbetStraightBond"
	TokenTypeShare        TokenType = "IbetShare"
)

// Valid reports whether t is one of the supported token types.
func (t TokenType) Valid() bool {
	switch t {
	case TokenTypeStraightBond, TokenTypeShare:
		return true
	}
	return false
}

// Token is a tracked security token contract.
type Token struct {
	Address               string    `db:"token_address"`
	Type                  TokenType `db:"token_type"`
	ABI                   string    `db:"abi"` // empty = built-in ABI for Type
	IssuerAddress         string    `db:"issuer_address"`
	ExchangeAddress       string    `db:"exchange_address"` // empty = not tradable
	WrapperAddress        string    `db:"wrapper_address"`  // wrapped token on the second chain
	InitialPositionSynced bool      `db:"initial_position_synced"`
	Active                bool      `db:"active"`
	CreatedAt             time.Time `db:"created_at"`
}

// HasExchange reports whether the token is listed on a trading venue.
func (t *Token) HasExchange() bool {
	return t.ExchangeAddress != "" && t.ExchangeAddress != ZeroAddress
}

// Normalize rewrites every address of the token in checksummed form.
func (t *Token) Normalize() {
	t.Address = NormalizeAddress(t.Address)
	t.IssuerAddress = NormalizeAddress(t.IssuerAddress)
	t.ExchangeAddress = NormalizeAddress(t.ExchangeAddress)
	t.WrapperAddress = NormalizeAddress(t.WrapperAddress)
}

// ZeroAddress is the checksummed zero address.
var ZeroAddress = common.Address{}.Hex()

// NormalizeAddress returns the EIP-55 checksummed form of a hex address.
// Every address stored or compared by the system goes through this.
func NormalizeAddress(addr string) string {
	if addr == "" {
		return ""
	}
	return common.HexToAddress(strings.TrimSpace(addr)).Hex()
}

// IsAddress reports whether s is a well-formed hex address.
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}
