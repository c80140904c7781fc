package emitter

import (
	"context"
	"log/slog"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
)

// Emitter delivers notifications to the notification sink
type Emitter interface {
	// Emit sends a single notification. Delivery is at-least-once: the
	// same notice id may be emitted again after a crash.
	Emit(ctx context.Context, n *domain.Notification) error

	// Close closes the emitter connection
	Close() error
}

// StreamPublisher is implemented by the Redis client.
type StreamPublisher interface {
	PublishNotification(ctx context.Context, n *domain.Notification) error
}

// RedisEmitter appends notifications to a Redis stream.
type RedisEmitter struct {
	pub StreamPublisher
}

func NewRedisEmitter(pub StreamPublisher) *RedisEmitter {
	return &RedisEmitter{pub: pub}
}

func (e *RedisEmitter) Emit(ctx context.Context, n *domain.Notification) error {
	return e.pub.PublishNotification(ctx, n)
}

func (e *RedisEmitter) Close() error { return nil }

// LogEmitter writes notifications to the log. Used when no sink is configured.
type LogEmitter struct {
	log *slog.Logger
}

func NewLogEmitter(log *slog.Logger) *LogEmitter {
	return &LogEmitter{log: log}
}

func (e *LogEmitter) Emit(ctx context.Context, n *domain.Notification) error {
	e.log.Info("Notification",
		"notice_id", n.ID,
		"notice_type", n.Type,
		"token", n.TokenAddress,
		"block", n.BlockNumber,
		"metainfo", string(n.Metainfo),
	)
	return nil
}

func (e *LogEmitter) Close() error { return nil }
