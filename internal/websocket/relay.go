package chatws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/curasync-homepage/curasync-web-app/internal/models"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultRelayChannel = "curasync:messages"

// RedisRelay spreads persisted messages across server instances. Every
// instance, the origin included, delivers to its local hub from the
// subscription, so each message reaches each hub once.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	local   *Hub
	log     *zap.Logger
}

func NewRedisRelay(client redis.UniversalClient, channel string, local *Hub, log *zap.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		local:   local,
		log:     log,
	}
}

// Publish sends message to every instance. When redis rejects the publish the
// message is still delivered to local subscribers.
func (r *RedisRelay) Publish(ctx context.Context, message models.Message) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode relay message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.local.metrics.relayErrors.Inc()
		r.log.Warn("relay publish failed, delivering locally",
			zap.String("message_id", message.ID),
			zap.Error(err),
		)
		return r.local.Publish(ctx, message)
	}
	return nil
}

// Listen feeds relayed messages into the local hub until ctx is done.
func (r *RedisRelay) Listen(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var message models.Message
			if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
				r.local.metrics.relayErrors.Inc()
				r.log.Warn("relay decode failed", zap.Error(err))
				continue
			}
			if err := r.local.Publish(ctx, message); err != nil {
				return err
			}
		}
	}
}
