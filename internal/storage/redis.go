package storage

import (
	"context"
	"encoding/json"
	"errors"
	"marketchat/backend/internal/config"
	"marketchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrNoRedis is returned by the pub/sub helpers when no client is configured.
var ErrNoRedis = errors.New("redis is not configured")

// NewRedisClient connects and pings Redis. It returns nil, nil when no
// address is configured.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// PublishMessage publishes a decrypted message on the shared fanout channel.
func (s *Service) PublishMessage(ctx context.Context, msg models.ChatMessage) error {
	if s.Redis == nil {
		return ErrNoRedis
	}

	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return s.Redis.Publish(ctx, s.Channel, msgBytes).Err()
}

// SubscribeMessages subscribes to the fanout channel. The caller closes the
// returned PubSub.
func (s *Service) SubscribeMessages(ctx context.Context) (*redis.PubSub, error) {
	if s.Redis == nil {
		return nil, ErrNoRedis
	}

	pubsub := s.Redis.Subscribe(ctx, s.Channel)
	// Wait for the confirmation so no publish is missed after we return.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	return pubsub, nil
}

// DecodeMessage parses a payload produced by PublishMessage.
func DecodeMessage(payload string) (models.ChatMessage, error) {
	var msg models.ChatMessage
	err := json.Unmarshal([]byte(payload), &msg)
	return msg, err
}
