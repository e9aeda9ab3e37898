package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"harmoni/internal/config"

	redis "github.com/redis/go-redis/v9"
)

// Client wraps go-redis client to centralize configuration.
type Client struct {
	inner *redis.Client
}

// ErrCacheMiss mirrors redis.Nil for callers.
var ErrCacheMiss = redis.Nil

// ErrNotInitialized is returned by every call on a nil client.
var ErrNotInitialized = errors.New("redis client not initialized")

// NewRedisClient creates the redis client from app config. It does not
// require the server to be reachable; callers probe with Ping.
func NewRedisClient(cfg config.RedisConfig) *Client {
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port == 0 {
		port = 6379
	}

	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaxRetries:   1,
	}
	return &Client{inner: redis.NewClient(opts)}
}

// Wrap adopts an existing go-redis client.
func Wrap(inner *redis.Client) *Client {
	return &Client{inner: inner}
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.inner == nil {
		return ErrNotInitialized
	}
	return c.inner.Ping(ctx).Err()
}

// Get fetches the key as string.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.inner == nil {
		return "", ErrNotInitialized
	}
	return c.inner.Get(ctx, key).Result()
}

// TTL returns key ttl.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	if c == nil || c.inner == nil {
		return 0, ErrNotInitialized
	}
	return c.inner.TTL(ctx, key).Result()
}

// MemoryInfo returns the used_memory* fields of INFO memory.
func (c *Client) MemoryInfo(ctx context.Context) (map[string]string, error) {
	if c == nil || c.inner == nil {
		return nil, ErrNotInitialized
	}
	raw, err := c.inner.Info(ctx, "memory").Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, line := range strings.Split(raw, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if ok && strings.HasPrefix(key, "used_memory") {
			out[key] = value
		}
	}
	return out, nil
}

// Close closes client.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// Raw exposes underlying go-redis client.
func (c *Client) Raw() *redis.Client {
	if c == nil {
		return nil
	}
	return c.inner
}
