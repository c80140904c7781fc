package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the notification sink and instance locks.
type Client struct {
	rdb    *redis.Client
	stream string
	owner  string
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Stream   string `yaml:"stream"`
}

// DefaultStream is used when Config.Stream is empty.
const DefaultStream = "prime:notifications"

// NewClient creates a new Redis client. owner identifies this process in
// instance locks.
func NewClient(cfg Config, owner string) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newClient(rdb, cfg.Stream, owner), nil
}

func newClient(rdb *redis.Client, stream, owner string) *Client {
	if stream == "" {
		stream = DefaultStream
	}
	return &Client{rdb: rdb, stream: stream, owner: owner}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health pings the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Key helpers
func lockKey(service string) string {
	return fmt.Sprintf("prime:lock:%s", service)
}
