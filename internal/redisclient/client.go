package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireLock acquires a best-effort lock for the given key. Used to
// serialize concurrent webhook deliveries for the same payment
// reference; the conditional DB updates remain the correctness guard.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a lock acquired with AcquireLock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

// CachePaymentStatus stores a payment's status keyed by reference with a TTL.
func (c *Client) CachePaymentStatus(ctx context.Context, reference, status string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("payment:status:%s", reference), status, ttl).Err()
}

// GetCachedPaymentStatus returns the cached status for a reference, or
// "" when the key is cold.
func (c *Client) GetCachedPaymentStatus(ctx context.Context, reference string) (string, error) {
	status, err := c.rdb.Get(ctx, fmt.Sprintf("payment:status:%s", reference)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// InvalidatePaymentStatus drops the cached status for a reference.
func (c *Client) InvalidatePaymentStatus(ctx context.Context, reference string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("payment:status:%s", reference)).Err()
}
