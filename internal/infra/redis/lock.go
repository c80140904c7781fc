package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireScript sets the lock when it is free and extends it when the caller
// already holds it, in one step.
var acquireScript = redis.NewScript(`
if redis.call("SET", KEYS[1], ARGV[1], "NX", "PX", ARGV[2]) then
	return 1
end
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
return 0
`)

// releaseScript deletes the lock only if the caller holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLock takes or extends the instance lock of a service. It returns
// false when another process holds the lock.
func (c *Client) AcquireLock(ctx context.Context, service string, ttl time.Duration) (bool, error) {
	n, err := acquireScript.Run(ctx, c.rdb, []string{lockKey(service)}, c.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquire lock failed: %w", err)
	}
	return n == 1, nil
}

// ReleaseLock drops the lock if this process holds it.
func (c *Client) ReleaseLock(ctx context.Context, service string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{lockKey(service)}, c.owner).Err(); err != nil {
		return fmt.Errorf("release lock failed: %w", err)
	}
	return nil
}
