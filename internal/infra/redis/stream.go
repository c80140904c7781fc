package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

// PublishNotification appends a notification to the stream. The notice id
// is carried in the entry so consumers can drop redeliveries.
func (c *Client) PublishNotification(ctx context.Context, n *domain.Notification) error {
	err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream,
		Values: map[string]any{
			"notice_id":      n.ID,
			"notice_type":    string(n.Type),
			"issuer_address": n.IssuerAddress,
			"token_address":  n.TokenAddress,
			"block_number":   strconv.FormatUint(n.BlockNumber, 10),
			"metainfo":       string(n.Metainfo),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

// StreamLength returns the number of entries in the stream.
func (c *Client) StreamLength(ctx context.Context) (int64, error) {
	return c.rdb.XLen(ctx, c.stream).Result()
}
