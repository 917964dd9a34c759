// Package kv defines the key-value cache contract backing the conversation
// cache. The cache is an optimization, never a source of truth: every entry may
// vanish at any time (TTL expiry, eviction, restart) without being wrong.
package kv

import (
	"context"
	"os"
	"strconv"
	"time"
)

// Store is the key-value cache interface. Implementations must treat a missing
// key as (nil, nil) on Get and as an empty list on ListRange.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	// Scan returns all keys matching a glob pattern, for bulk invalidation.
	Scan(ctx context.Context, pattern string) ([]string, error)

	// List operations, Redis semantics: ListAppend pushes to the tail,
	// ListTrim/ListRange accept negative indices counted from the tail,
	// stop is inclusive.
	ListAppend(ctx context.Context, key string, values ...[]byte) error
	ListTrim(ctx context.Context, key string, start, stop int64) error
	ListRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	Expire(ctx context.Context, key string, ttl time.Duration) error

	Close() error
}

// Config holds the cache connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	PoolSize     int
	MinIdleConns int
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		KeyPrefix:    "convoflow:",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// ConfigFromEnv creates a cache config from environment variables.
// Environment variables:
//   - CONVOFLOW_CACHE_REDIS_ADDR: Redis address (default: localhost:6379)
//   - CONVOFLOW_CACHE_REDIS_PASSWORD: Redis password (default: "")
//   - CONVOFLOW_CACHE_REDIS_DB: Redis DB number (default: 0)
//   - CONVOFLOW_CACHE_REDIS_PREFIX: Key prefix (default: "convoflow:")
func ConfigFromEnv() *Config {
	config := DefaultConfig()

	if addr := os.Getenv("CONVOFLOW_CACHE_REDIS_ADDR"); addr != "" {
		config.Addr = addr
	}
	if password := os.Getenv("CONVOFLOW_CACHE_REDIS_PASSWORD"); password != "" {
		config.Password = password
	}
	if db := os.Getenv("CONVOFLOW_CACHE_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			config.DB = n
		}
	}
	if prefix := os.Getenv("CONVOFLOW_CACHE_REDIS_PREFIX"); prefix != "" {
		config.KeyPrefix = prefix
	}

	return config
}

// IsRedisEnabled checks if Redis caching should be enabled based on environment.
// Returns true if CONVOFLOW_CACHE_REDIS_ADDR is set.
func IsRedisEnabled() bool {
	return os.Getenv("CONVOFLOW_CACHE_REDIS_ADDR") != ""
}
