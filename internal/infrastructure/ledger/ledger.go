// Package ledger backs the idempotency ledger and the per-user rate
// limiter with a shared Redis instance.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/taskforge/core/internal/infrastructure/config"
	"github.com/taskforge/core/internal/infrastructure/logger"
)

// Client wraps the Redis connection shared by the ledger and limiter.
type Client struct {
	rdb *redis.Client
}

// NewClient connects to Redis and verifies the connection.
func NewClient(cfg config.RedisConfig, log *logger.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Infow("Redis connected", "addr", cfg.GetAddr())
	return &Client{rdb: rdb}, nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck pings Redis.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// IdempotencyLedger records processed event ids with a TTL so duplicate
// deliveries are detected across replicas.
type IdempotencyLedger struct {
	client *Client
	ttl    time.Duration
}

// NewIdempotencyLedger builds a ledger with the given entry TTL.
func NewIdempotencyLedger(client *Client, ttl time.Duration) *IdempotencyLedger {
	return &IdempotencyLedger{client: client, ttl: ttl}
}

// MarkProcessed atomically test-and-sets the (consumer, event) pair.
// Returns true when this delivery is the first one seen.
func (l *IdempotencyLedger) MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key := fmt.Sprintf("processed-event:%s:%s", consumer, eventID)

	first, err := l.client.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("ledger test-and-set %s: %w", key, err)
	}
	return first, nil
}

// SlidingWindowLimiter bounds per-key request rates with a Redis sorted
// set, so the limit holds across replicas.
type SlidingWindowLimiter struct {
	client *Client
	limit  int
	window time.Duration
	prefix string
}

// NewSlidingWindowLimiter allows limit requests per window for each key.
func NewSlidingWindowLimiter(client *Client, limit int, window time.Duration, prefix string) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{client: client, limit: limit, window: window, prefix: prefix}
}

// Allow records one request and reports whether it fits in the window.
func (rl *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)
	now := time.Now()
	cutoff := now.Add(-rl.window)

	pipe := rl.client.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", fmt.Sprintf("%d", cutoff.UnixNano()))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: fmt.Sprintf("%d", now.UnixNano())})
	count := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit check %s: %w", redisKey, err)
	}

	return count.Val() <= int64(rl.limit), nil
}
