package changelog

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisChannel = "assetvault:changelog"

// RedisNotifier publishes signals on a redis channel so every API instance
// wakes its own live subscribers, not only the instance that wrote.
type RedisNotifier struct {
	client *redis.Client
	local  *LocalNotifier
	cancel context.CancelFunc
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &RedisNotifier{client: client, local: NewLocalNotifier(), cancel: cancel}
	go n.relay(ctx)
	return n
}

func (n *RedisNotifier) relay(ctx context.Context) {
	sub := n.client.Subscribe(ctx, redisChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				log.Warn().Str("channel", redisChannel).Msg("redis changelog subscription closed")
				return
			}
			n.local.broadcast()
		}
	}
}

func (n *RedisNotifier) Notify(ctx context.Context) error {
	return n.client.Publish(ctx, redisChannel, "1").Err()
}

func (n *RedisNotifier) Subscribe() (<-chan struct{}, func()) {
	return n.local.Subscribe()
}

func (n *RedisNotifier) Close() error {
	n.cancel()
	return nil
}
