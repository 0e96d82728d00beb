// Package ratelimit bounds how many events a project may submit per window.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// DefaultPrefix namespaces limiter keys in Redis.
const DefaultPrefix = "lensai:ratelimit:"

// slidingWindow keeps one sorted-set member per admitted request, scored by
// its arrival time in nanoseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window_start = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
local ttl = tonumber(ARGV[5])

redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

if redis.call('ZCARD', key) < limit then
	redis.call('ZADD', key, now, member)
	redis.call('EXPIRE', key, ttl)
	return 1
end
return 0
`)

type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter connects to redisURL and admits up to limit requests per key
// in any window-long interval.
func NewRedisLimiter(ctx context.Context, redisURL string, limit int, window time.Duration) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisLimiterFromClient(client, limit, window), nil
}

func NewRedisLimiterFromClient(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: DefaultPrefix,
		now:    time.Now,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now().UnixNano()
	windowStart := now - r.window.Nanoseconds()
	ttl := int64(math.Ceil(r.window.Seconds()))
	if ttl < 1 {
		ttl = 1
	}

	res, err := slidingWindow.Run(ctx, r.client,
		[]string{r.prefix + key},
		now, windowStart, r.limit, uuid.NewString(), ttl,
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return res == 1, nil
}

// Window is the length of the sliding window.
func (r *RedisLimiter) Window() time.Duration {
	return r.window
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

// NoOp admits every request.
type NoOp struct{}

func (NoOp) Allow(context.Context, string) (bool, error) { return true, nil }

func (NoOp) Close() error { return nil }
