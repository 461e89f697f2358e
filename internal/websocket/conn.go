package websocket

import (
	"errors"
	"sync/atomic"
)

// ConnState is the lifecycle state of one transport connection.
// Transitions only move forward: Connecting -> Connected -> Disconnected.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

var (
	// ErrNotConnected is returned by Send outside the Connected state
	ErrNotConnected = errors.New("connection not connected")
	// ErrSendBufferFull is returned by Send when the client is not draining
	ErrSendBufferFull = errors.New("send buffer full")
)

// Conn is a connection handle the hub can push messages to.
// Send must not block: it enqueues or fails.
type Conn interface {
	ID() string
	// UserID is the authenticated user, or "" for an anonymous viewer
	UserID() string
	State() ConnState
	Send(msg *Message) error
	Close(reason string)
}

// connState is an atomic forward-only state cell shared by Conn implementations
type connState struct {
	v atomic.Int32
}

func (s *connState) load() ConnState {
	return ConnState(s.v.Load())
}

// advance moves to next if next is later than the current state
func (s *connState) advance(next ConnState) bool {
	for {
		cur := s.v.Load()
		if ConnState(cur) >= next {
			return false
		}
		if s.v.CompareAndSwap(cur, int32(next)) {
			return true
		}
	}
}
