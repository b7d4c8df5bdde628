package notify

import (
	"context"

	redis "github.com/redis/go-redis/v9"
)

const channel = "ventapos:data-changed"

type RedisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(addr string, password string, db int) *RedisBroadcaster {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisBroadcaster{client: client}
}

func (b *RedisBroadcaster) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}

func (b *RedisBroadcaster) Publish(ctx context.Context, kind string) error {
	return b.client.Publish(ctx, channel, kind).Err()
}

// Subscribe returns the pub/sub handle for the data-changed channel. The
// WebSocket gateway in front of the terminals consumes it.
func (b *RedisBroadcaster) Subscribe(ctx context.Context) *redis.PubSub {
	return b.client.Subscribe(ctx, channel)
}
