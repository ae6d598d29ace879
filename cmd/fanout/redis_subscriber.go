package main

import (
	"context"
	"strings"

	"github.com/pixelvault/vault/common/logger"
	"github.com/redis/go-redis/v9"
)

// RedisSubscriber listens to the vault event channels and forwards
// payloads to the hub.
type RedisSubscriber struct {
	redis *redis.Client
	hub   *Hub
	log   *logger.Logger
}

// NewRedisSubscriber creates a new RedisSubscriber instance
func NewRedisSubscriber(redisClient *redis.Client, hub *Hub, log *logger.Logger) *RedisSubscriber {
	return &RedisSubscriber{
		redis: redisClient,
		hub:   hub,
		log:   log,
	}
}

// Start subscribes to vault:events:* and pumps messages until the
// context is cancelled.
func (s *RedisSubscriber) Start(ctx context.Context) error {
	pubsub := s.redis.PSubscribe(ctx, "vault:events:*")
	defer pubsub.Close()

	s.log.Info("redis subscriber started", "pattern", "vault:events:*")

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("redis subscriber stopping")
			return nil

		case msg := <-ch:
			if msg == nil {
				continue
			}

			owner := extractOwnerFromChannel(msg.Channel)
			if owner == "" {
				s.log.Warn("invalid channel format", "channel", msg.Channel)
				continue
			}

			s.hub.broadcast <- &Message{
				Owner: owner,
				Data:  []byte(msg.Payload),
			}
		}
	}
}

// extractOwnerFromChannel extracts the owner from a channel name.
// Example: "vault:events:alice" yields "alice".
func extractOwnerFromChannel(channel string) string {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != "vault" || parts[1] != "events" {
		return ""
	}
	return parts[2]
}
