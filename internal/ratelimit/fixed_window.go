package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR the slot counter and arm its expiry on first hit. Returns {count, pttl}.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

const callTimeout = 2 * time.Second

// FixedWindowLimiter counts requests per key in fixed windows stored in Redis,
// so every gateway instance shares one quota.
type FixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// New builds a limiter on an existing Redis client.
func New(client redis.UniversalClient, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if client == nil {
		return nil, errors.New("rate limiter requires a redis client")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "bizdesk:ratelimit"
	}
	return &FixedWindowLimiter{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}, nil
}

// Allow consumes one unit of key's quota. When denied, retryAfter is the time
// left in the current window. Redis failures deny the request.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration) {
	if l == nil {
		return false, 0
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	vals, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64Slice()
	if err != nil || len(vals) != 2 {
		return false, l.window
	}
	if vals[0] <= int64(l.limit) {
		return true, 0
	}
	retryAfter = time.Duration(vals[1]) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = l.window
	}
	return false, retryAfter
}
