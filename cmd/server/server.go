package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zfogg/snapgram/internal/auth"
	"github.com/zfogg/snapgram/internal/cache"
	"github.com/zfogg/snapgram/internal/cluster"
	"github.com/zfogg/snapgram/internal/config"
	"github.com/zfogg/snapgram/internal/container"
	"github.com/zfogg/snapgram/internal/database"
	"github.com/zfogg/snapgram/internal/handlers"
	"github.com/zfogg/snapgram/internal/logger"
	"github.com/zfogg/snapgram/internal/middleware"
	"github.com/zfogg/snapgram/internal/telemetry"
	"github.com/zfogg/snapgram/internal/util"
	"github.com/zfogg/snapgram/internal/websocket"
	"go.uber.org/zap"
)

// socketPath is excluded from compression; the upgrade must not be wrapped
const socketPath = "/api/v1/ws"

// buildContainer opens the database, connects the cluster broker and
// assembles the realtime hub. Resources are registered for cleanup as they
// are created, so a failure part way through releases what was opened.
func buildContainer(ctx context.Context, cfg *config.Config) (*container.Container, error) {
	app := container.New().WithLogger(logger.Log)

	db, err := database.Open(database.Options{
		Driver:  cfg.DatabaseDriver,
		URL:     cfg.DatabaseURL,
		Verbose: !cfg.IsProduction() && cfg.LogLevel == "debug",
	})
	if err != nil {
		return nil, err
	}
	app.WithDB(db).OnCleanup("database", func(context.Context) error {
		return database.Close(db)
	})

	if err := database.Migrate(db); err != nil {
		_ = app.Cleanup(ctx)
		return nil, err
	}

	broker, err := connectBroker(app, cfg)
	if err != nil {
		_ = app.Cleanup(ctx)
		return nil, err
	}

	hub := websocket.NewHub(websocket.HubConfig{
		MultiSession: cfg.Realtime.SessionMode == config.SessionModeMulti,
		Broker:       broker,
		SyncInterval: cfg.Cluster.SyncInterval,
	})
	authService := auth.NewService(db, cfg.JWTSecret, cfg.JWTTTL)
	wsHandler := websocket.NewHandler(hub, authService, websocket.HandlerConfig{
		OriginPatterns: []string{cfg.AllowedOriginHost()},
		AllowAnonymous: cfg.Realtime.AllowAnonymous,
		Client: websocket.ClientOptions{
			PingInterval: cfg.Realtime.PingInterval,
			SendBuffer:   cfg.Realtime.SendBuffer,
			RateLimit:    websocket.DefaultRateLimitConfig(),
		},
	})

	app.WithAuthService(authService).
		WithHub(hub).
		WithWebSocketHandler(wsHandler)

	if err := app.Validate(); err != nil {
		_ = app.Cleanup(ctx)
		return nil, err
	}
	return app, nil
}

// connectBroker returns the configured cluster broker, or nil for a single
// process deployment
func connectBroker(app *container.Container, cfg *config.Config) (cluster.Broker, error) {
	switch cfg.Cluster.Broker {
	case config.BrokerRedis:
		rc, err := cache.NewRedisClient(cfg.Cluster.RedisHost, cfg.Cluster.RedisPort, cfg.Cluster.RedisPassword)
		if err != nil {
			return nil, err
		}
		app.WithCache(rc).OnCleanup("redis", func(context.Context) error {
			return rc.Close()
		})

		broker := cluster.NewRedisBroker(rc.Client())
		app.WithBroker(broker).OnCleanup("cluster broker", func(context.Context) error {
			return broker.Close()
		})
		logger.Log.Info("Cluster fan-out over Redis", zap.String("addr", rc.Addr()))
		return broker, nil

	case config.BrokerNATS:
		broker, err := cluster.ConnectNATS(cfg.Cluster.NATSURL, "snapgram")
		if err != nil {
			return nil, err
		}
		app.WithBroker(broker).OnCleanup("cluster broker", func(context.Context) error {
			return broker.Close()
		})
		logger.Log.Info("Cluster fan-out over NATS", zap.String("url", cfg.Cluster.NATSURL))
		return broker, nil

	case config.BrokerNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown cluster broker %q", cfg.Cluster.Broker)
}

// authRateLimit shares counters through Redis when a Redis client is wired,
// otherwise each instance limits on its own
func authRateLimit(app *container.Container) gin.HandlerFunc {
	cfg := middleware.AuthRateLimitConfig()
	if rc := app.Cache(); rc != nil {
		return middleware.RateLimit(middleware.NewRedisLimiter(rc.Client(), "snapgram:ratelimit:auth", cfg), cfg)
	}
	return middleware.RateLimit(middleware.NewMemoryLimiter(cfg), cfg)
}

// newRouter mounts the REST API, the socket endpoint and operational routes
func newRouter(cfg *config.Config, app *container.Container) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	if cfg.Telemetry.Enabled {
		r.Use(middleware.TracingMiddleware(telemetry.ServiceName))
	}

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.ClientURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{socketPath})))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := handlers.NewHandlers(app.DB(), app.Auth(), app.Hub())
	h.SetSecureCookies(cfg.IsProduction())
	h.SetAuthRateLimit(authRateLimit(app))
	r.GET("/api/health", h.Health)

	requireAuth := middleware.AuthMiddleware(app.Auth())
	api := r.Group("/api/v1")
	h.RegisterRoutes(api, requireAuth)

	wsHandler := app.WebSocketHandler()
	ws := api.Group("/ws")
	{
		// token comes from the cookie, Authorization header or ?token=
		ws.GET("", wsHandler.HandleWebSocket)
		ws.GET("/connect", wsHandler.HandleWebSocket)

		ws.GET("/online", requireAuth, wsHandler.HandleOnlineUsers)
		ws.POST("/online", requireAuth, wsHandler.HandleOnlineStatus)
		ws.GET("/metrics", requireAuth, wsHandler.HandleStats)
	}

	r.NoRoute(func(c *gin.Context) {
		util.RespondNotFound(c, "route")
	})
	return r
}
