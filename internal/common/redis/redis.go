// Package redis wraps go-redis with the two concerns the wallet service
// needs from a shared cache: the Idempotency Cache (§3/§5) and a
// token-bucket write-rate gate guarding retry storms on the daily-limit
// endpoints, per the design notes on rate limiting error-callback storms.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/feltstack/pokerwallet/internal/common/config"
	"github.com/feltstack/pokerwallet/internal/common/logger"
)

type Client struct {
	rdb    *goredis.Client
	logger *logger.Logger
}

func Connect(cfg config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Infof("Connected to redis at %s", cfg.Addr())
	return &Client{rdb: rdb, logger: log}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

const idempotencyPrefix = "idem:"

// CachedReply is the byte-for-byte replay payload stored per idempotency key.
type CachedReply struct {
	Status    int    `json:"status"`
	Body      []byte `json:"body"`
	CreatedAt int64  `json:"created_at"`
}

// SetIdempotency stores reply under key with the configured TTL, "first
// request wins": it uses SETNX so a concurrent duplicate request that
// raced past the pre-execution cache lookup can never clobber the
// response that is about to become the cached, replayed one.
func (c *Client) SetIdempotency(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := c.rdb.SetNX(ctx, idempotencyPrefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set idempotency key: %w", err)
	}
	return nil
}

// GetIdempotency returns the raw cached payload for key, or goredis.Nil if absent.
func (c *Client) GetIdempotency(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, idempotencyPrefix+key).Bytes()
	if err != nil {
		return nil, err
	}
	return val, nil
}

// IsNotFound reports whether err is go-redis's "key does not exist" sentinel.
func IsNotFound(err error) bool {
	return err == goredis.Nil
}

const rateGatePrefix = "rategate:"

// AllowRate implements a simple fixed-window token-bucket gate: at most
// limit calls for key within window. It fails open (allows the call) if
// redis itself is unreachable, since the gate is a defense-in-depth
// measure, not a correctness dependency — the Lock Manager and Daily
// Limits remain the source of truth either way.
func (c *Client) AllowRate(ctx context.Context, key string, limit int64, window time.Duration) bool {
	count, err := c.rdb.Incr(ctx, rateGatePrefix+key).Result()
	if err != nil {
		c.logger.Warnf("rate gate unavailable, failing open: %v", err)
		return true
	}
	if count == 1 {
		c.rdb.Expire(ctx, rateGatePrefix+key, window)
	}
	return count <= limit
}
