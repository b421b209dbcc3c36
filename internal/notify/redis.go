package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/HugoP8/whazaaa/internal/logger"
)

const redisPublishTimeout = 2 * time.Second

// RedisSink publishes events on a Redis pub/sub channel. Publish is a
// network round trip; publishers reach it through Async.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(ctx context.Context, url, channel string) (*RedisSink, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisSink{client: client, channel: channel}, nil
}

func (s *RedisSink) Publish(topic string, payload any) {
	body, err := Encode(topic, payload)
	if err != nil {
		logger.Error("⚠️ failed to encode event", zap.String("topic", topic), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, body).Err(); err != nil {
		logger.Warn("⚠️ failed to publish event to redis", zap.String("topic", topic), zap.Error(err))
	}
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}

var _ Sink = (*RedisSink)(nil)
