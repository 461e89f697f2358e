// Package container holds the server's long-lived dependencies and their
// shutdown hooks.
package container

import (
	"context"
	"sync"

	"github.com/zfogg/snapgram/internal/auth"
	"github.com/zfogg/snapgram/internal/cache"
	"github.com/zfogg/snapgram/internal/cluster"
	"github.com/zfogg/snapgram/internal/logger"
	"github.com/zfogg/snapgram/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Container holds all application dependencies and provides type-safe access
type Container struct {
	// Core infrastructure
	db     *gorm.DB
	logger *zap.Logger
	cache  *cache.RedisClient
	broker cluster.Broker

	auth      *auth.Service
	hub       *websocket.Hub
	wsHandler *websocket.Handler

	// Lifecycle hooks
	cleanupFuncs []cleanupFunc
	mu           sync.RWMutex
}

type cleanupFunc struct {
	name string
	fn   func(context.Context) error
}

// New creates a new empty container
func New() *Container {
	return &Container{}
}

// WithDB registers the database connection
func (c *Container) WithDB(db *gorm.DB) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.db = db
	return c
}

// DB returns the database connection
func (c *Container) DB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// WithLogger registers the logger
func (c *Container) WithLogger(l *zap.Logger) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
	return c
}

// Logger returns the logger instance
func (c *Container) Logger() *zap.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggerLocked()
}

func (c *Container) loggerLocked() *zap.Logger {
	if c.logger == nil {
		return logger.Log
	}
	return c.logger
}

// WithCache registers the Redis client
func (c *Container) WithCache(client *cache.RedisClient) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = client
	return c
}

// Cache returns the Redis client, nil when Redis is not configured
func (c *Container) Cache() *cache.RedisClient {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache
}

// WithBroker registers the cluster broker
func (c *Container) WithBroker(b cluster.Broker) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broker = b
	return c
}

// Broker returns the cluster broker, nil when running single instance
func (c *Container) Broker() cluster.Broker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.broker
}

// WithAuthService registers the auth service
func (c *Container) WithAuthService(service *auth.Service) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = service
	return c
}

// Auth returns the auth service
func (c *Container) Auth() *auth.Service {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth
}

// WithHub registers the realtime hub
func (c *Container) WithHub(hub *websocket.Hub) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hub = hub
	return c
}

// Hub returns the realtime hub
func (c *Container) Hub() *websocket.Hub {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hub
}

// WithWebSocketHandler registers the socket upgrade handler
func (c *Container) WithWebSocketHandler(handler *websocket.Handler) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wsHandler = handler
	return c
}

// WebSocketHandler returns the socket upgrade handler
func (c *Container) WebSocketHandler() *websocket.Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wsHandler
}

// OnCleanup registers a cleanup function to be called during shutdown.
// Cleanup functions run in LIFO order.
func (c *Container) OnCleanup(name string, fn func(context.Context) error) *Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, cleanupFunc{name: name, fn: fn})
	return c
}

// Cleanup runs every registered cleanup function in reverse order of
// registration. A failing function is logged and the rest still run; the
// first error is returned.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first error
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		cf := c.cleanupFuncs[i]
		if err := cf.fn(ctx); err != nil {
			c.loggerLocked().Error("Cleanup function failed",
				zap.String("name", cf.name),
				zap.Error(err),
			)
			if first == nil {
				first = err
			}
		}
	}
	c.cleanupFuncs = nil
	return first
}

// Validate checks that all required dependencies are registered
func (c *Container) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var missing []string
	if c.db == nil {
		missing = append(missing, "database (DB)")
	}
	if c.auth == nil {
		missing = append(missing, "auth service")
	}
	if c.hub == nil {
		missing = append(missing, "realtime hub")
	}
	if c.wsHandler == nil {
		missing = append(missing, "websocket handler")
	}

	if len(missing) > 0 {
		return NewInitializationError("Missing required dependencies", missing)
	}
	return nil
}
