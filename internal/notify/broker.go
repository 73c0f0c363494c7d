package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/logger"
	"github.com/redis/go-redis/v9"
	"github.com/susu3304/falta1/internal/model"
)

// Broker carries status messages to the hubs of every instance.
type Broker interface {
	Publish(ctx context.Context, msg model.StatusMessage) error
	// Run relays remote messages into the local hub until ctx is done.
	Run(ctx context.Context) error
}

// MemoryBroker serves a single instance: publishing delivers directly.
type MemoryBroker struct {
	hub *Hub
}

func NewMemoryBroker(hub *Hub) *MemoryBroker {
	return &MemoryBroker{hub: hub}
}

func (b *MemoryBroker) Publish(ctx context.Context, msg model.StatusMessage) error {
	b.hub.Deliver(msg)
	return nil
}

func (b *MemoryBroker) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

const redisChannel = "falta1:payment-status"

// RedisBroker fans messages out through Redis pub/sub so a settlement
// received by one instance reaches WebSocket clients connected to another.
type RedisBroker struct {
	client *redis.Client
	hub    *Hub
}

func NewRedisBroker(redisURL string, hub *Hub) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	return &RedisBroker{client: redis.NewClient(opts), hub: hub}, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Publish(ctx context.Context, msg model.StatusMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, redisChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}
	return nil
}

func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, redisChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", redisChannel, err)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(m.Payload)
		}
	}
}

func (b *RedisBroker) relay(payload string) {
	var msg model.StatusMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil || msg.TxID == "" {
		logger.Warningf("notify: ignoring malformed broker message %q", payload)
		return
	}
	b.hub.Deliver(msg)
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
