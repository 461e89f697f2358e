package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/zfogg/snapgram/internal/logger"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer. Clients send no application
	// events, so anything larger is abuse.
	maxMessageSize = 4 * 1024

	defaultPingInterval = 54 * time.Second
	defaultSendBuffer   = 256
)

// ClientOptions configures a Client
type ClientOptions struct {
	// PingInterval is the heartbeat period. A pong must arrive within
	// PingInterval*10/9 or the connection is evicted.
	PingInterval time.Duration
	SendBuffer   int
	RateLimit    RateLimitConfig
}

// RateLimitConfig defines inbound frame limits
type RateLimitConfig struct {
	// MaxMessagesPerSecond per client
	MaxMessagesPerSecond int
	// BurstSize allows short bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 10,
		BurstSize:            20,
	}
}

// Client is a Conn backed by a WebSocket
type Client struct {
	id     string
	userID string

	conn *websocket.Conn
	hub  *Hub

	// Buffered channel of outbound frames
	send chan []byte

	state connState

	ConnectedAt time.Time
	RemoteAddr  string
	UserAgent   string

	rateLimiter  *RateLimiter
	pingInterval time.Duration
	pinging      atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ Conn = (*Client)(nil)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens    float64
	maxTokens float64
	refill    float64
	lastTime  time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxPerSecond int, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:    float64(burst),
		maxTokens: float64(burst),
		refill:    float64(maxPerSecond),
		lastTime:  time.Now(),
	}
}

// Allow checks if an action is allowed and consumes a token
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastTime).Seconds()
	r.lastTime = now

	r.tokens += elapsed * r.refill
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// NewClient creates a Client in the connecting state
func NewClient(hub *Hub, conn *websocket.Conn, userID string, opts ClientOptions) *Client {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.RateLimit.MaxMessagesPerSecond <= 0 {
		opts.RateLimit = DefaultRateLimitConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:           uuid.New().String(),
		userID:       userID,
		conn:         conn,
		hub:          hub,
		send:         make(chan []byte, opts.SendBuffer),
		ConnectedAt:  time.Now(),
		rateLimiter:  NewRateLimiter(opts.RateLimit.MaxMessagesPerSecond, opts.RateLimit.BurstSize),
		pingInterval: opts.PingInterval,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ID returns the connection id
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user id, or "" for anonymous viewers
func (c *Client) UserID() string { return c.userID }

// State returns the lifecycle state
func (c *Client) State() ConnState { return c.state.load() }

// MarkConnected moves the client out of the connecting state
func (c *Client) MarkConnected() bool {
	return c.state.advance(StateConnected)
}

// Send enqueues a message without blocking
func (c *Client) Send(msg *Message) error {
	if c.state.load() != StateConnected {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrNotConnected
	default:
		return ErrSendBufferFull
	}
}

// Close moves the client to disconnected and closes the socket.
// The close handshake runs in the background so callers never wait on a peer.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.state.advance(StateDisconnected)
		c.cancel()

		status := websocket.StatusNormalClosure
		switch reason {
		case EvictShutdown:
			status = websocket.StatusGoingAway
		case EvictRateLimited:
			status = websocket.StatusPolicyViolation
		case EvictSlowConsumer:
			status = websocket.StatusTryAgainLater
		}
		go c.conn.Close(status, reason)
	})
}

// ReadPump services control frames and discards application frames until the
// connection ends, then runs the disconnect path
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Detach(c)
		c.Close("read closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		_, _, err := c.conn.Read(c.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Log.Debug("Realtime client closed normally", logger.WithConnID(c.id))
			} else if c.ctx.Err() == nil {
				logger.Log.Debug("Realtime read ended", logger.WithConnID(c.id), zap.Error(err))
			}
			return
		}

		if !c.rateLimiter.Allow() {
			c.hub.evict(c, EvictRateLimited)
			return
		}
	}
}

// WritePump drains the send buffer to the socket and runs the heartbeat
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return

		case data := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					logger.Log.Debug("Realtime write failed", logger.WithConnID(c.id), zap.Error(err))
				}
				c.Close("write failed")
				return
			}

		case <-ticker.C:
			// Ping waits for the pong; keep it off the write loop
			if c.pinging.CompareAndSwap(false, true) {
				go c.heartbeat()
			}
		}
	}
}

func (c *Client) heartbeat() {
	defer c.pinging.Store(false)

	ctx, cancel := context.WithTimeout(c.ctx, c.pingInterval*10/9)
	defer cancel()

	if err := c.conn.Ping(ctx); err != nil && c.ctx.Err() == nil {
		c.hub.evict(c, EvictHeartbeat)
	}
}
