// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultHost is the relay bind address when none is configured.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the relay TCP port when none is configured.
	DefaultPort = 1234
	// DefaultMaxMessageSize bounds a single frame payload.
	DefaultMaxMessageSize int64 = 64 * 1024
)

// RateLimitConfig defines the parameters for per-connection message rate
// limiting. A Burst of zero disables the limit.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay configuration.
type Config struct {
	// Host and Port locate the TCP relay listener.
	Host string
	Port int
	// HTTPAddr serves health, client listing and the WebSocket gateway.
	// Empty disables the HTTP side.
	HTTPAddr       string
	AllowedOrigins []string

	MaxMessageSize int64
	RateLimit      RateLimitConfig
	// SendBufferSize is the number of deliveries queued per client before
	// further deliveries to it are dropped.
	SendBufferSize int
	WriteTimeout   time.Duration
	// PollInterval is how long a TCP read waits before the handler checks
	// for shutdown and idleness.
	PollInterval time.Duration
	// IdleTimeout disconnects clients silent for this long. Zero disables it.
	IdleTimeout time.Duration

	// RedisURL selects the Redis username store. Empty uses memory.
	RedisURL string
	// RedisPurge drops every stored name at startup. Disable it when more
	// than one relay shares the database.
	RedisPurge bool
	// AMQPURL enables presence publishing. Empty disables it.
	AMQPURL          string
	PresenceExchange string
}

func defaultConfig() Config {
	return Config{
		Host:     DefaultHost,
		Port:     DefaultPort,
		HTTPAddr: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: DefaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			RefillInterval: time.Second,
		},
		SendBufferSize: 256,
		WriteTimeout:   10 * time.Second,
		PollInterval:   time.Second,
		RedisPurge:     true,
	}
}

// Sanitize returns a copy of c with invalid or missing values replaced by
// defaults and origins normalized.
func (c Config) Sanitize() Config {
	defaults := defaultConfig()

	if c.Host == "" {
		c.Host = defaults.Host
	}
	if c.Port <= 0 || c.Port > 65535 {
		c.Port = defaults.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.RateLimit.Burst < 0 {
		c.RateLimit.Burst = 0
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaults.SendBufferSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.IdleTimeout < 0 {
		c.IdleTimeout = 0
	}

	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	return c
}

// Addr returns the host:port the relay listens on.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if host := os.Getenv("RELAY_HOST"); host != "" {
		cfg.Host = host
	}

	if port := os.Getenv("RELAY_PORT"); port != "" {
		cfg.Port = parseIntValue(port, cfg.Port)
	}

	// HTTP_ADDR may be set to an empty value to disable the HTTP side
	if addr, ok := os.LookupEnv("HTTP_ADDR"); ok {
		cfg.HTTPAddr = strings.TrimSpace(addr)
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if idle := os.Getenv("IDLE_TIMEOUT"); idle != "" {
		cfg.IdleTimeout = parseSeconds(idle, cfg.IdleTimeout)
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if purge := os.Getenv("REDIS_PURGE"); purge != "" {
		if parsed, err := strconv.ParseBool(purge); err == nil {
			cfg.RedisPurge = parsed
		}
	}
	cfg.AMQPURL = os.Getenv("RABBITMQ_URL")
	cfg.PresenceExchange = os.Getenv("PRESENCE_EXCHANGE")

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
