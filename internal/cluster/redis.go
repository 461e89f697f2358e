package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/zfogg/snapgram/internal/logger"
	"go.uber.org/zap"
)

// RedisBroker fans envelopes out over Redis pub/sub
type RedisBroker struct {
	client  *redis.Client
	channel string

	mu     sync.Mutex
	subs   []*redis.PubSub
	closed bool
}

// NewRedisBroker creates a broker on an existing client
func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{
		client:  client,
		channel: RedisChannel,
	}
}

// Publish sends an envelope to every subscribed instance
func (b *RedisBroker) Publish(ctx context.Context, env *Envelope) error {
	data, err := Encode(env)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe starts delivering envelopes to handler
func (b *RedisBroker) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	b.mu.Unlock()

	pubsub := b.client.Subscribe(ctx, b.channel)
	// Subscription must be confirmed before Subscribe returns
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, pubsub)
	b.mu.Unlock()

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				env, err := Decode([]byte(msg.Payload))
				if err != nil {
					logger.Log.Warn("Dropping malformed cluster envelope", zap.Error(err))
					continue
				}
				handler(env)
			}
		}
	}()

	return nil
}

// Close stops every subscription. The redis client is owned by the caller.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, sub := range b.subs {
		_ = sub.Close()
	}
	b.subs = nil
	return nil
}
