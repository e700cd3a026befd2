package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the sync service reads from the environment.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisURL    string

	Brokers  []string
	Topic    string
	DLQTopic string
	Group    string

	DomainScope string
	Origin      string

	RetryAttempts int
	RetryBackoff  time.Duration

	JWTSigningKey string
}

// FromEnv builds the Config from environment variables so main stays lean.
// Defaults follow the origin deployment: the sells routing key, the shared
// durable group, the Sells domain scope, and five retries five seconds apart.
func FromEnv() Config {
	return Config{
		Addr:          envOr("SELLSYNC_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		Brokers:       strings.Split(envOr("BROKER_ADDRS", "localhost:9092"), ","),
		Topic:         envOr("BROKER_TOPIC", "rh_event.sells"),
		DLQTopic:      envOr("BROKER_DLQ_TOPIC", "rh_event.sells.dlq"),
		Group:         envOr("BROKER_GROUP", "rhevents-rh"),
		DomainScope:   envOr("DOMAIN_SCOPE", "Sells"),
		Origin:        envOr("EVENT_ORIGIN", "sells"),
		RetryAttempts: envInt("RETRY_ATTEMPTS", 5),
		RetryBackoff:  envDuration("RETRY_BACKOFF", 5*time.Second),
		// Should be overridden outside development.
		JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return fallback
}
