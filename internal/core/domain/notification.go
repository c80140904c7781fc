package domain

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotificationTypeLockInfo   NotificationType = "LockInfo"
	NotificationTypeUnlockInfo NotificationType = "UnlockInfo"
)

// Notification is written by the indexer in the same commit as the positions
// it describes and later drained to the notification sink.
type Notification struct {
	ID            string           `db:"notice_id"`
	Type          NotificationType `db:"notice_type"`
	IssuerAddress string           `db:"issuer_address"`
	TokenAddress  string           `db:"token_address"`
	BlockNumber   uint64           `db:"block_number"`
	Metainfo      json.RawMessage  `db:"metainfo"`
	Published     bool             `db:"published"`
	CreatedAt     time.Time        `db:"created_at"`
}

// LockMetainfo is the payload of LockInfo notifications.
type LockMetainfo struct {
	LockAddress    string `json:"lock_address"`
	AccountAddress string `json:"account_address"`
	Value          int64  `json:"value"`
	Data           string `json:"data"`
}

// UnlockMetainfo is the payload of UnlockInfo notifications.
type UnlockMetainfo struct {
	LockAddress      string `json:"lock_address"`
	AccountAddress   string `json:"account_address"`
	RecipientAddress string `json:"recipient_address"`
	Value            int64  `json:"value"`
	Data             string `json:"data"`
}
