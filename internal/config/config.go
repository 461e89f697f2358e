// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Session modes for the presence registry
const (
	SessionModeSingle = "single"
	SessionModeMulti  = "multi"
)

// Cluster broker kinds
const (
	BrokerNone  = "none"
	BrokerRedis = "redis"
	BrokerNATS  = "nats"
)

// Config holds every setting the server reads from the environment
type Config struct {
	Port        string
	Environment string

	// ClientURL is the single origin allowed to make cross-origin requests
	// and socket upgrades
	ClientURL string

	JWTSecret []byte
	JWTTTL    time.Duration

	LogLevel string
	LogFile  string

	DatabaseDriver string
	DatabaseURL    string

	Realtime  RealtimeConfig
	Cluster   ClusterConfig
	Telemetry TelemetryConfig
}

// RealtimeConfig configures the presence registry and socket transport
type RealtimeConfig struct {
	SessionMode    string
	AllowAnonymous bool
	PingInterval   time.Duration
	SendBuffer     int
}

// ClusterConfig configures cross-instance fan-out
type ClusterConfig struct {
	Broker        string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	NATSURL       string
	SyncInterval  time.Duration
}

// TelemetryConfig configures OpenTelemetry tracing
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SamplingRate float64
}

// ValidationError lists every invalid setting found by Validate
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Load reads configuration from environment variables, applying defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvOrDefault("PORT", "8000"),
		Environment:    getEnvOrDefault("ENVIRONMENT", "development"),
		ClientURL:      getEnvOrDefault("URL", "http://localhost:5173"),
		JWTSecret:      []byte(os.Getenv("JWT_SECRET")),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:        getEnvOrDefault("LOG_FILE", "server.log"),
		DatabaseDriver: getEnvOrDefault("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		Realtime: RealtimeConfig{
			SessionMode: strings.ToLower(getEnvOrDefault("SESSION_MODE", SessionModeSingle)),
		},
		Cluster: ClusterConfig{
			Broker:        strings.ToLower(getEnvOrDefault("CLUSTER_BROKER", BrokerNone)),
			RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
			RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			NATSURL:       getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}

	var problems []string

	var err error
	if cfg.JWTTTL, err = durationEnv("JWT_TTL", 24*time.Hour); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.Realtime.PingInterval, err = durationEnv("WS_PING_INTERVAL", 54*time.Second); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.Cluster.SyncInterval, err = durationEnv("CLUSTER_SYNC_INTERVAL", 15*time.Second); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.Realtime.AllowAnonymous, err = boolEnv("WS_ALLOW_ANONYMOUS", true); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.Telemetry.Enabled, err = boolEnv("OTEL_ENABLED", false); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.Realtime.SendBuffer, err = intEnv("WS_SEND_BUFFER", 256); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.Telemetry.SamplingRate, err = floatEnv("OTEL_SAMPLING_RATE", 1.0); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that settings are consistent, reporting every problem at once
func (c *Config) Validate() error {
	var problems []string

	if len(c.JWTSecret) == 0 {
		problems = append(problems, "JWT_SECRET is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("PORT %q is not a number", c.Port))
	}
	if u, err := url.Parse(c.ClientURL); err != nil || u.Host == "" {
		problems = append(problems, fmt.Sprintf("URL %q must be an absolute origin", c.ClientURL))
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("DATABASE_DRIVER %q must be postgres or sqlite", c.DatabaseDriver))
	}
	switch c.Realtime.SessionMode {
	case SessionModeSingle, SessionModeMulti:
	default:
		problems = append(problems, fmt.Sprintf("SESSION_MODE %q must be single or multi", c.Realtime.SessionMode))
	}
	switch c.Cluster.Broker {
	case BrokerNone, BrokerRedis, BrokerNATS:
	default:
		problems = append(problems, fmt.Sprintf("CLUSTER_BROKER %q must be none, redis or nats", c.Cluster.Broker))
	}
	if c.Realtime.PingInterval <= 0 {
		problems = append(problems, "WS_PING_INTERVAL must be positive")
	}
	if c.Realtime.SendBuffer <= 0 {
		problems = append(problems, "WS_SEND_BUFFER must be positive")
	}
	if c.Cluster.SyncInterval <= 0 {
		problems = append(problems, "CLUSTER_SYNC_INTERVAL must be positive")
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		problems = append(problems, "OTEL_SAMPLING_RATE must be between 0 and 1")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// AllowedOriginHost returns the host[:port] of ClientURL, the form the
// socket origin check matches against
func (c *Config) AllowedOriginHost() string {
	u, err := url.Parse(c.ClientURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a duration", key, raw)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s %q is not a boolean", key, raw)
	}
	return b, nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer", key, raw)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not a number", key, raw)
	}
	return f, nil
}
