package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	queueChannelPrefix = "queue:"
	tokenChannelPrefix = "token:"
)

// RedisBridge mirrors hub publishes onto Redis pub/sub channels and relays
// events published by other service instances into the local hub. The
// engine is correct without the bridge; it exists so subscribers connected
// to different instances see the same stream.
type RedisBridge struct {
	hub      *Hub
	client   *redis.Client
	logger   *zap.Logger
	instance string
}

// NewRedisBridge wires a bridge around the hub. A nil client yields a
// bridge whose Publish degrades to local-only delivery.
func NewRedisBridge(hub *Hub, client *redis.Client, logger *zap.Logger) *RedisBridge {
	return &RedisBridge{
		hub:      hub,
		client:   client,
		logger:   logger,
		instance: uuid.NewString(),
	}
}

// Publish delivers locally, then fire-and-forgets the event to Redis.
func (b *RedisBridge) Publish(event Event) {
	event.Origin = b.instance
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	b.hub.Publish(event)

	if b.client == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("marshal event", zap.Error(err))
		return
	}
	ctx := context.Background()
	if err := b.client.Publish(ctx, queueChannelPrefix+event.QueueID, payload).Err(); err != nil {
		b.logger.Warn("redis publish", zap.Error(err), zap.String("queue_id", event.QueueID))
	}
	if event.TokenID != "" {
		if err := b.client.Publish(ctx, tokenChannelPrefix+event.TokenID, payload).Err(); err != nil {
			b.logger.Warn("redis publish", zap.Error(err), zap.String("token_id", event.TokenID))
		}
	}
}

// Run relays inbound events from other instances until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) {
	if b.client == nil {
		return
	}
	pubsub := b.client.PSubscribe(ctx, queueChannelPrefix+"*")
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("decode relayed event", zap.Error(err))
				continue
			}
			if event.Origin == b.instance {
				continue
			}
			b.hub.Publish(event)
		}
	}
}
