package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bridgecare/scheduling-core/internal/models"
)

// RedisPublisher publishes domain events to a Redis channel. Publish
// errors are logged and swallowed so emitting operations never block on
// delivery.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisPublisher constructs a publisher for the given channel.
func NewRedisPublisher(client *redis.Client, channel string, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, channel: channel, logger: logger}
}

// Record publishes the event as JSON, fire-and-forget.
func (p *RedisPublisher) Record(ctx context.Context, event models.DomainEvent) {
	if p.client == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal domain event", zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("publish domain event",
			zap.String("type", string(event.Type)),
			zap.String("channel", p.channel),
			zap.Error(err))
	}
}
