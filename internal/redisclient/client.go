package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const pendingMarker = "pending"

// Client wraps the Redis connection used for token revocation and order
// idempotency keys
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks the server is reachable
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

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// RevokeToken blacklists a token id until ttl elapses. A non-positive ttl
// means the token has already expired and nothing is stored.
func (c *Client) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, revokedKey(tokenID), "1", ttl).Err()
}

// IsTokenRevoked reports whether a token id has been blacklisted
func (c *Client) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, revokedKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimIdempotencyKey reserves key for a new request. When the key was
// already claimed it reports claimed=false along with the order id stored by
// CompleteIdempotencyKey, or 0 while the first request is still running.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (claimed bool, orderID int64, err error) {
	k := idempotencyKey(key)

	ok, err := c.rdb.SetNX(ctx, k, pendingMarker, ttl).Result()
	if err != nil {
		return false, 0, fmt.Errorf("claim idempotency key failed: %w", err)
	}
	if ok {
		return true, 0, nil
	}

	val, err := c.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; let the caller retry
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("read idempotency key failed: %w", err)
	}
	if val == pendingMarker {
		return false, 0, nil
	}

	orderID, err = strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("corrupt idempotency value %q: %w", val, err)
	}
	return false, orderID, nil
}

// CompleteIdempotencyKey records the order created under key
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(key), strconv.FormatInt(orderID, 10), ttl).Err()
}

// ReleaseIdempotencyKey forgets a claim so the request may be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}

func revokedKey(tokenID string) string {
	return fmt.Sprintf("auth:revoked:%s", tokenID)
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:order:%s", key)
}
