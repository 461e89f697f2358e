package websocket

import (
	"sync"

	"github.com/google/uuid"
)

// fakeConn records every message the hub hands it
type fakeConn struct {
	id     string
	userID string
	state  connState

	mu       sync.Mutex
	msgs     []*Message
	full     bool
	closedBy string
}

func newFakeConn(userID string) *fakeConn {
	c := &fakeConn{id: uuid.New().String(), userID: userID}
	c.state.advance(StateConnected)
	return c
}

func (c *fakeConn) ID() string       { return c.id }
func (c *fakeConn) UserID() string   { return c.userID }
func (c *fakeConn) State() ConnState { return c.state.load() }

func (c *fakeConn) Send(msg *Message) error {
	if c.state.load() != StateConnected {
		return ErrNotConnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return ErrSendBufferFull
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.advance(StateDisconnected) {
		c.closedBy = reason
	}
}

func (c *fakeConn) setFull(full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.full = full
}

func (c *fakeConn) messages() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Message(nil), c.msgs...)
}

// events returns only messages with the given event name
func (c *fakeConn) events(event string) []*Message {
	var out []*Message
	for _, m := range c.messages() {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// lastRoster returns the payload of the latest presenceRoster message
func (c *fakeConn) lastRoster() []string {
	rosters := c.events(EventPresenceRoster)
	if len(rosters) == 0 {
		return nil
	}
	var users []string
	if err := rosters[len(rosters)-1].ParsePayload(&users); err != nil {
		return nil
	}
	return users
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
}

func (c *fakeConn) closedReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedBy
}
