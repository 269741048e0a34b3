// Package redis implements the run lock, per-source fetch throttle and run
// report stream using go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key when ClientConfig.KeyPrefix is empty.
const DefaultKeyPrefix = "navledger"

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
	// KeyPrefix namespaces locks, rate-limit windows and the report stream
	// so several deployments can share one Redis.
	KeyPrefix string
}

// Keyspace builds colon-separated keys under a prefix.
type Keyspace string

// Key joins the prefix and parts, e.g. "navledger:lock:run:2024-03-15".
func (k Keyspace) Key(parts ...string) string {
	return strings.Join(append([]string{string(k)}, parts...), ":")
}

func newKeyspace(prefix string) Keyspace {
	prefix = strings.Trim(prefix, ": ")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keyspace(prefix)
}

// Client wraps a go-redis Client and provides connectivity helpers.
type Client struct {
	rdb  *redis.Client
	keys Keyspace
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
		ClientName: "navledger",
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Client{rdb: rdb, keys: newKeyspace(cfg.KeyPrefix)}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying returns the raw driver client.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}

// Keys returns the client's keyspace.
func (c *Client) Keys() Keyspace {
	return c.keys
}
