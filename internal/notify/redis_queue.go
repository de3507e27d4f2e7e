package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const retryQueueKey = "delivery:notify:retry"

// RedisQueue is a RetryQueue backed by a Redis sorted set scored by due
// time in unix milliseconds. It survives process restarts and is shared
// across dispatcher instances.
type RedisQueue struct {
	rdb *redis.Client
}

// NewRedisQueue connects to Redis and fails fast when unreachable.
func NewRedisQueue(ctx context.Context, redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = 1 * time.Second
	if opts.TLSConfig == nil && strings.HasPrefix(redisURL, "rediss:") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisQueue{rdb: rdb}, nil
}

func (q *RedisQueue) Schedule(ctx context.Context, notificationID string, due time.Time) error {
	return q.rdb.ZAdd(ctx, retryQueueKey, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: notificationID,
	}).Err()
}

func (q *RedisQueue) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	return q.rdb.ZRangeByScore(ctx, retryQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
}

func (q *RedisQueue) Remove(ctx context.Context, notificationID string) error {
	return q.rdb.ZRem(ctx, retryQueueKey, notificationID).Err()
}

// Close releases the underlying client.
func (q *RedisQueue) Close() error {
	return q.rdb.Close()
}
