package relay

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type RedisTransport struct {
	rdb     redis.UniversalClient
	channel string
}

func NewRedisTransport(rdb redis.UniversalClient) *RedisTransport {
	return &RedisTransport{rdb: rdb, channel: Subject}
}

func (t *RedisTransport) Send(ctx context.Context, msg []byte) error {
	return t.rdb.Publish(ctx, t.channel, msg).Err()
}

func (t *RedisTransport) Receive(ctx context.Context, fn func([]byte)) error {
	sub := t.rdb.Subscribe(ctx, t.channel)
	defer sub.Close()

	// wait for the subscription confirmation so nothing published after Receive starts is missed
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			fn([]byte(m.Payload))
		}
	}
}

// Close is a no-op; the client belongs to the caller.
func (t *RedisTransport) Close() error { return nil }
