package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pixelvault/vault/cmd/vault/models"
	"github.com/pixelvault/vault/common/logger"
	rediscommon "github.com/pixelvault/vault/common/redis"
)

// EventPublisher notifies interested clients of image lifecycle changes.
type EventPublisher interface {
	PublishImageEvent(ctx context.Context, event models.ImageEvent) error
}

// RedisEventPublisher fans events out over per-owner pub/sub channels;
// the websocket fanout service subscribes to vault:events:* and routes
// by owner.
type RedisEventPublisher struct {
	redis *rediscommon.Client
	log   *logger.Logger
}

func NewRedisEventPublisher(redis *rediscommon.Client, log *logger.Logger) *RedisEventPublisher {
	return &RedisEventPublisher{redis: redis, log: log}
}

func ownerChannel(owner string) string {
	return "vault:events:" + owner
}

func (p *RedisEventPublisher) PublishImageEvent(ctx context.Context, event models.ImageEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal image event: %w", err)
	}
	if err := p.redis.PublishEvent(ctx, ownerChannel(event.Owner), string(payload)); err != nil {
		return fmt.Errorf("failed to publish image event: %w", err)
	}
	p.log.Debug("published image event",
		"type", event.Type,
		"image_id", event.ImageID,
		"owner", event.Owner)
	return nil
}
