package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const DefaultChannel = "localeforge:events"

// RedisForwarder republishes bus events as JSON on a Redis pub/sub channel
// so other processes can observe them.
type RedisForwarder struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

func NewRedisForwarder(client *redis.Client, channel string, logger zerolog.Logger) *RedisForwarder {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisForwarder{client: client, channel: channel, logger: logger}
}

func (f *RedisForwarder) Channel() string {
	return f.channel
}

// Handle is a Handler; subscribe it with Bus.Subscribe.
func (f *RedisForwarder) Handle(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Msg("marshal event")
		return
	}
	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		f.logger.Error().Err(err).Str("event_type", event.Type).Msg("forward event to redis")
	}
}
