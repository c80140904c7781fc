package domain

import "time"

// BlockCursor holds the highest block whose events are fully applied.
type BlockCursor struct {
	Name              string    `db:"name"`
	LatestBlockNumber uint64    `db:"latest_block_number"`
	UpdatedAt         time.Time `db:"updated_at"`
}
