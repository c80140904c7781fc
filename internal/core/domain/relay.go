package domain

import (
	"encoding/json"
	"time"
)

// Queue names a relay queue. Each queue is owned by exactly one relay.
type Queue string

const (
	QueueRelay  Queue = "relay"
	QueueBridge Queue = "bridge"
)

type TxStatus string

const (
	TxStatusPending   TxStatus = "PENDING"
	TxStatusSent      TxStatus = "SENT"
	TxStatusSucceeded TxStatus = "SUCCEEDED"
	TxStatusFailed    TxStatus = "FAILED"
)

// IsTerminal reports whether s can never change again.
func (s TxStatus) IsTerminal() bool {
	return s == TxStatusSucceeded || s == TxStatusFailed
}

type TxType string

const (
	// Relay queue
	TxTypeMint            TxType = "MINT"
	TxTypeBurn            TxType = "BURN"
	TxTypeAddWhitelist    TxType = "ADD_WHITELIST"
	TxTypeDeleteWhitelist TxType = "DELETE_WHITELIST"
	TxTypeRequestTrade    TxType = "REQUEST_TRADE"
	TxTypeCancelTrade     TxType = "CANCEL_TRADE"
	TxTypeAcceptTrade     TxType = "ACCEPT_TRADE"
	TxTypeRejectTrade     TxType = "REJECT_TRADE"

	// Bridge queue
	TxTypeForceUnlock              TxType = "FORCE_UNLOCK"
	TxTypeForceChangeLockedAccount TxType = "FORCE_CHANGE_LOCKED_ACCOUNT"
)

// Authorization is the off-chain, nonce-bound signature that lets the relay
// submit an action on the authorizer's behalf. It is passed to the contract
// untouched.
type Authorization struct {
	Nonce string `json:"nonce"` // 0x-prefixed 32 bytes
	V     uint8  `json:"v"`
	R     string `json:"r"` // 0x-prefixed 32 bytes
	S     string `json:"s"` // 0x-prefixed 32 bytes
}

// RelayTransaction is a durable queue entry. Rows are never deleted.
type RelayTransaction struct {
	TxID            string          `db:"tx_id"`
	Queue           Queue           `db:"queue"`
	TxType          TxType          `db:"tx_type"`
	ContractAddress string          `db:"contract_address"`
	Params          json.RawMessage `db:"tx_params"`
	Status          TxStatus        `db:"status"`
	Sender          string          `db:"tx_sender"`
	Authorizer      string          `db:"authorizer"`
	Authorization   *Authorization  `db:"-"`
	TxHash          *string         `db:"tx_hash"`
	BlockNumber     *uint64         `db:"block_number"`
	Finalized       bool            `db:"finalized"`
	FailureReason   *string         `db:"failure_reason"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// MintParams is the payload of MINT.
type MintParams struct {
	ToAddress string `json:"to_address"`
	Value     int64  `json:"value"`
}

// BurnParams is the payload of BURN.
type BurnParams struct {
	FromAddress string `json:"from_address"`
	Value       int64  `json:"value"`
}

// WhitelistParams is the payload of ADD_WHITELIST and DELETE_WHITELIST.
type WhitelistParams struct {
	AccountAddress string `json:"account_address"`
}

// RequestTradeParams is the payload of REQUEST_TRADE.
type RequestTradeParams struct {
	SellerSTAccountAddress string `json:"seller_st_account_address"`
	BuyerSTAccountAddress  string `json:"buyer_st_account_address"`
	SCTokenAddress         string `json:"sc_token_address"`
	SellerSCAccountAddress string `json:"seller_sc_account_address"`
	BuyerSCAccountAddress  string `json:"buyer_sc_account_address"`
	STValue                int64  `json:"st_value"`
	SCValue                int64  `json:"sc_value"`
	Memo                   string `json:"memo"`
}

// TradeIndexParams is the payload of CANCEL_TRADE, ACCEPT_TRADE and REJECT_TRADE.
type TradeIndexParams struct {
	Index int64 `json:"index"`
}

// ForceUnlockParams is the payload of FORCE_UNLOCK.
type ForceUnlockParams struct {
	LockAddress      string `json:"lock_address"`
	AccountAddress   string `json:"account_address"`
	RecipientAddress string `json:"recipient_address"`
	Value            int64  `json:"value"`
	Data             string `json:"data"`
}

// ForceChangeLockedAccountParams is the payload of FORCE_CHANGE_LOCKED_ACCOUNT.
type ForceChangeLockedAccountParams struct {
	LockAddress          string `json:"lock_address"`
	BeforeAccountAddress string `json:"before_account_address"`
	AfterAccountAddress  string `json:"after_account_address"`
	Value                int64  `json:"value"`
	Data                 string `json:"data"`
}
