// Package cluster fans presence and routed events out between server
// instances. The realtime hub owns the local registry; this package only
// moves envelopes and tracks what the other instances report.
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope kinds
const (
	KindDeliver = "deliver"
	KindRoster  = "roster"
	KindLeave   = "leave"
)

// Channel is the Redis channel and NATS subject envelopes travel on
const (
	RedisChannel = "snapgram:realtime"
	NATSSubject  = "snapgram.realtime"
)

var (
	ErrBrokerClosed    = errors.New("broker closed")
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Envelope is the unit exchanged between instances.
// A deliver envelope carries one encoded socket message for Target.
// A roster envelope carries the complete local roster of Origin.
// A leave envelope announces that Origin is shutting down.
type Envelope struct {
	Kind   string          `json:"kind"`
	Origin string          `json:"origin"`
	Target string          `json:"target,omitempty"`
	Users  []string        `json:"users,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	SentAt time.Time       `json:"sent_at"`
}

// Handler receives envelopes from other instances
type Handler func(env *Envelope)

// Broker publishes envelopes to every other instance.
// Subscribe returns once the subscription is live and delivers envelopes on a
// background goroutine until ctx is done or the broker is closed.
type Broker interface {
	Publish(ctx context.Context, env *Envelope) error
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// NewInstanceID returns a random id identifying this process on the bus
func NewInstanceID() string {
	return uuid.New().String()
}

// Encode serializes an envelope for the wire
func Encode(env *Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses and validates an envelope from the wire
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks that the envelope is well formed for its kind
func (e *Envelope) Validate() error {
	if e.Origin == "" {
		return fmt.Errorf("%w: missing origin", ErrInvalidEnvelope)
	}
	switch e.Kind {
	case KindDeliver:
		if e.Target == "" || len(e.Data) == 0 {
			return fmt.Errorf("%w: deliver needs target and data", ErrInvalidEnvelope)
		}
	case KindRoster, KindLeave:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEnvelope, e.Kind)
	}
	return nil
}

// NewDeliver builds a deliver envelope
func NewDeliver(origin, target string, data []byte) *Envelope {
	return &Envelope{
		Kind:   KindDeliver,
		Origin: origin,
		Target: target,
		Data:   data,
		SentAt: time.Now().UTC(),
	}
}

// NewRoster builds a roster envelope
func NewRoster(origin string, users []string) *Envelope {
	return &Envelope{
		Kind:   KindRoster,
		Origin: origin,
		Users:  users,
		SentAt: time.Now().UTC(),
	}
}

// NewLeave builds a leave envelope
func NewLeave(origin string) *Envelope {
	return &Envelope{
		Kind:   KindLeave,
		Origin: origin,
		SentAt: time.Now().UTC(),
	}
}
