// Package cache provides a Redis-backed response cache for read endpoints.
// Entries are keyed per resource type so any write to a type invalidates all
// of its cached documents.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned when a key is not in the cache
var ErrCacheMiss = errors.New("cache miss")

// Config holds cache configuration
type Config struct {
	// Prefix namespaces all keys
	Prefix string
	// DefaultTTL applies when Set is called with a zero TTL
	DefaultTTL time.Duration
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		Prefix:     "weft:",
		DefaultTTL: 5 * time.Minute,
	}
}

// Cache is a Redis-backed document cache
type Cache struct {
	client *redis.Client
	config Config
}

// Open connects to Redis and verifies connectivity
func Open(addr, password string, db int, config Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, config), nil
}

// NewWithClient wraps an existing Redis client
func NewWithClient(client *redis.Client, config Config) *Cache {
	if config.Prefix == "" {
		config = DefaultConfig()
	}
	return &Cache{client: client, config: config}
}

// Get retrieves a cached document
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, c.config.Prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", key, ErrCacheMiss)
		}
		return nil, err
	}
	return value, nil
}

// Set stores a document with a TTL; zero means the default TTL
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	return c.client.Set(ctx, c.config.Prefix+key, value, ttl).Err()
}

// Delete removes a single document
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.config.Prefix+key).Err()
}

// InvalidateType removes every cached document of one resource type. Called
// after any write to that type.
func (c *Cache) InvalidateType(ctx context.Context, resourceType string) error {
	pattern := c.config.Prefix + resourceType + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}
