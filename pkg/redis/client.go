// Package redis provides a thin wrapper around go-redis/v9 for the enrichment
// cache: point reads used by the bridges and pipelined writes used by the
// bootstrap job.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Transit-Data-Bridge/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Nil is returned by Get when the key does not exist.
var Nil = redis.Nil

// Client wraps a go-redis client.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Get returns the string value for the given key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// HGetAll returns every field of the hash at key. A missing key yields an
// empty map and no error.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.rdb.HGetAll(ctx, key).Result()
}

// Set stores a value with the given TTL.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Entry is one key written by WriteBatch: a hash when Fields is set,
// otherwise a plain string Value.
type Entry struct {
	Key    string
	Value  string
	Fields map[string]string
}

// WriteBatch writes entries in a single pipeline, giving each key the same
// TTL, and returns how many keys were written.
func (c *Client) WriteBatch(ctx context.Context, entries []Entry, ttl time.Duration) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	pipe := c.rdb.Pipeline()
	for _, e := range entries {
		if e.Fields != nil {
			fields := make(map[string]interface{}, len(e.Fields))
			for k, v := range e.Fields {
				fields[k] = v
			}
			pipe.HSet(ctx, e.Key, fields)
			pipe.Expire(ctx, e.Key, ttl)
			continue
		}
		pipe.Set(ctx, e.Key, e.Value, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("executing pipeline of %d entries: %w", len(entries), err)
	}
	return len(entries), nil
}

// IsNilError reports whether err is a Redis nil (key-not-found) error.
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping sends a PING to Redis and returns any error.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
