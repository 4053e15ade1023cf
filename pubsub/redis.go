package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisTransport is a Transport over a dedicated go-redis PubSub connection.
// go-redis resubscribes every tracked channel and pattern after reconnecting.
type RedisTransport struct {
	ps *redis.PubSub
}

// NewRedisTransport opens a subscribe connection with no initial channels.
func NewRedisTransport(ctx context.Context, client redis.UniversalClient) *RedisTransport {
	return &RedisTransport{ps: client.Subscribe(ctx)}
}

func (t *RedisTransport) Subscribe(ctx context.Context, channels ...string) error {
	return t.ps.Subscribe(ctx, channels...)
}

func (t *RedisTransport) Unsubscribe(ctx context.Context, channels ...string) error {
	return t.ps.Unsubscribe(ctx, channels...)
}

func (t *RedisTransport) PSubscribe(ctx context.Context, patterns ...string) error {
	return t.ps.PSubscribe(ctx, patterns...)
}

func (t *RedisTransport) PUnsubscribe(ctx context.Context, patterns ...string) error {
	return t.ps.PUnsubscribe(ctx, patterns...)
}

// Ping checks the subscribe connection.
func (t *RedisTransport) Ping(ctx context.Context) error {
	return t.ps.Ping(ctx)
}

// Pump dispatches received messages into m until ctx is done or the
// connection is closed.
func (t *RedisTransport) Pump(ctx context.Context, m *Multiplexer) {
	ch := t.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			m.Dispatch(fromRedis(msg))
		}
	}
}

// Close closes the subscribe connection.
func (t *RedisTransport) Close() error {
	return t.ps.Close()
}

func fromRedis(msg *redis.Message) Message {
	if msg.Pattern != "" {
		return Message{Kind: Pattern, Pattern: msg.Pattern, Channel: msg.Channel, Payload: msg.Payload}
	}
	return Message{Kind: Channel, Channel: msg.Channel, Payload: msg.Payload}
}
