package cluster

import (
	"context"
	"encoding/json"
	"sync"
)

// Bus is an in-process message bus. Every broker created from the same bus
// sees every envelope published by the others, the same way instances share
// a Redis channel. Used for single-binary multi-hub setups and tests.
type Bus struct {
	mu      sync.RWMutex
	members map[*MemoryBroker]struct{}
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{members: make(map[*MemoryBroker]struct{})}
}

// Broker attaches a new broker to the bus
func (b *Bus) Broker() *MemoryBroker {
	return &MemoryBroker{bus: b}
}

// MemoryBroker is a Broker attached to a Bus
type MemoryBroker struct {
	bus *Bus

	mu       sync.Mutex
	handlers []Handler
	closed   bool
}

// Publish hands a copy of the envelope to every subscribed broker on the bus,
// including this one
func (m *MemoryBroker) Publish(ctx context.Context, env *Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(env)
	if err != nil {
		return err
	}

	m.bus.mu.RLock()
	members := make([]*MemoryBroker, 0, len(m.bus.members))
	for member := range m.bus.members {
		members = append(members, member)
	}
	m.bus.mu.RUnlock()

	for _, member := range members {
		member.dispatch(data)
	}
	return nil
}

func (m *MemoryBroker) dispatch(data []byte) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		h(&env)
	}
}

// Subscribe registers handler. Envelopes are delivered synchronously on the
// publisher's goroutine.
func (m *MemoryBroker) Subscribe(ctx context.Context, handler Handler) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrBrokerClosed
	}
	m.handlers = append(m.handlers, handler)
	m.mu.Unlock()

	m.bus.mu.Lock()
	m.bus.members[m] = struct{}{}
	m.bus.mu.Unlock()
	return nil
}

// Close detaches the broker from the bus
func (m *MemoryBroker) Close() error {
	m.mu.Lock()
	m.closed = true
	m.handlers = nil
	m.mu.Unlock()

	m.bus.mu.Lock()
	delete(m.bus.members, m)
	m.bus.mu.Unlock()
	return nil
}
