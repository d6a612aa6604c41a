package redis

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client with the handful of operations the
// service needs: simple key-value reads/writes and SETNX-style locks.
type Client struct {
	client *redis.Client
}

// NewClient connects using REDIS_URL (host:port), defaulting to a
// local instance.
func NewClient() *Client {
	addr := os.Getenv("REDIS_URL")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: "", // no password by default
		DB:       0,  // use default DB
	})
	return &Client{client: client}
}

// Ping checks connectivity, for health checks.
func (r *Client) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *Client) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *Client) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// SetNX sets the key only if it does not already exist, returning
// whether the key was claimed. Backs the per-conversation stream lock.
func (r *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, expiration).Result()
}
