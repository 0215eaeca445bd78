// Package ratelimit throttles message sends per sender with a Redis sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)
	if count >= limit then
		return 0
	end

	local seq = redis.call('INCR', counter_key)
	redis.call('ZADD', key, now, now .. ':' .. seq)
	redis.call('PEXPIRE', key, window_ms)
	redis.call('PEXPIRE', counter_key, window_ms)
	return 1
`)

// SlidingWindowLimiter allows at most limit events per key within window.
type SlidingWindowLimiter struct {
	client redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

// NewSlidingWindowLimiter constructs a limiter. Keys are namespaced under prefix.
func NewSlidingWindowLimiter(client redis.Scripter, limit int, window time.Duration, prefix string) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{client: client, limit: limit, window: window, prefix: prefix}
}

// Allow records one event for key and reports whether it fits in the window.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()

	allowed, err := slidingWindowScript.Run(ctx, l.client, l.keys(key),
		now.UnixMilli(),
		now.Add(-l.window).UnixMilli(),
		l.limit,
		l.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("run rate limit script: %w", err)
	}
	return allowed == 1, nil
}

// NewClient parses a redis:// URL and returns a connected client.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// keys returns the window and sequence keys for key. The hash tag keeps both in one cluster slot.
func (l *SlidingWindowLimiter) keys(key string) []string {
	base := "{" + l.prefix + key + "}"
	return []string{base, base + ":seq"}
}
