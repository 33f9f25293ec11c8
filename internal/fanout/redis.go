// README: Redis pub/sub fanout bus; the production push channel.
package fanout

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Redis struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedis(client *redis.Client, log *zap.Logger) *Redis {
	return &Redis{client: client, log: log}
}

func (r *Redis) Publish(ctx context.Context, topic string, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, topic, payload).Err()
}

func (r *Redis) Subscribe(ctx context.Context, topic string) (<-chan Event, func()) {
	sub := r.client.Subscribe(ctx, topic)
	out := make(chan Event, subscriberBuffer)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				r.log.Warn("fanout: drop malformed payload",
					zap.String("topic", topic), zap.Error(err))
				continue
			}
			select {
			case out <- ev:
			default:
			}
		}
	}()

	return out, func() { _ = sub.Close() }
}
