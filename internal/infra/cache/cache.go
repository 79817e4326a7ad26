// Package cache wraps Redis operations for the graceful degradation
// fallback store.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Client wraps Redis for fallback-response storage.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and verifies the connection.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func fallbackKey(path string) string {
	return fmt.Sprintf("fallback:%s", path)
}

// PutFallback stores the last good response body for a path.
func (c *Client) PutFallback(ctx context.Context, path string, body []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, fallbackKey(path), body, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store fallback for %s: %w", path, err)
	}
	return nil
}

// GetFallback returns the last good response body for a path.
// found is false when no fallback exists or it has expired.
func (c *Client) GetFallback(ctx context.Context, path string) (body []byte, found bool, err error) {
	data, err := c.rdb.Get(ctx, fallbackKey(path)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read fallback for %s: %w", path, err)
	}
	return data, true, nil
}
