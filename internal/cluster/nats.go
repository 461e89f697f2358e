package cluster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/zfogg/snapgram/internal/logger"
	"go.uber.org/zap"
)

// NATSBroker fans envelopes out over a core NATS subject
type NATSBroker struct {
	nc      *nats.Conn
	subject string
	owned   bool

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

// ConnectNATS dials the server and returns a broker that owns the connection
func ConnectNATS(url, name string) (*NATSBroker, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	b := NewNATSBroker(nc)
	b.owned = true
	return b, nil
}

// NewNATSBroker creates a broker on an existing connection
func NewNATSBroker(nc *nats.Conn) *NATSBroker {
	return &NATSBroker{
		nc:      nc,
		subject: NATSSubject,
	}
}

// Publish sends an envelope to every subscribed instance
func (b *NATSBroker) Publish(ctx context.Context, env *Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(env)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Subscribe starts delivering envelopes to handler
func (b *NATSBroker) Subscribe(ctx context.Context, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}

	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		env, err := Decode(msg.Data)
		if err != nil {
			logger.Log.Warn("Dropping malformed cluster envelope", zap.Error(err))
			return
		}
		handler(env)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	// Round trip to the server so the interest is registered before returning
	if err := b.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}
	b.subs = append(b.subs, sub)

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// Close drains subscriptions, and the connection when the broker dialed it
func (b *NATSBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, sub := range b.subs {
		_ = sub.Drain()
	}
	b.subs = nil
	if b.owned {
		return b.nc.Drain()
	}
	return nil
}
