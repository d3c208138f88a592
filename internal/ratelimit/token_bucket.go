package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), ts}
`

const keyPrefix = "seatly:ratelimit:"

// TokenBucket is a Redis-backed limiter shared by every process. A rule of
// Limit per Window becomes a bucket of Limit tokens refilled at
// Limit/Window per second.
type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
}

func NewTokenBucket(client redis.Scripter) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, rule Rule) (Result, error) {
	if t == nil || t.client == nil {
		return Result{}, ErrNotAvailable
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return Result{}, ErrEmptyKey
	}
	if !rule.valid() {
		return Result{}, ErrInvalidRule
	}

	rate := float64(rule.Limit) / rule.Window.Seconds()
	ttl := bucketTTL(rate, rule.Limit)

	reply, err := t.script.Run(ctx, t.client, []string{keyPrefix + key},
		rate, rule.Limit, ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrNotAvailable, err)
	}
	return parseBucketReply(reply, rule, rate)
}

// parseBucketReply decodes {allowed, tokens, ts}. Tokens come back as a
// string because Redis truncates Lua floats to integers.
func parseBucketReply(reply []any, rule Rule, rate float64) (Result, error) {
	if len(reply) < 3 {
		return Result{}, fmt.Errorf("%w: unexpected script reply %v", ErrNotAvailable, reply)
	}

	allowed := toInt(reply[0]) == 1
	tokens := toFloat(reply[1])
	ts := time.UnixMilli(toInt(reply[2])).UTC()

	result := Result{
		Allowed:   allowed,
		Limit:     rule.Limit,
		Remaining: int(math.Floor(tokens)),
		ResetAt:   ts.Add(time.Duration((float64(rule.Limit) - tokens) / rate * float64(time.Second))),
	}
	if !allowed {
		result.RetryAfter = time.Duration((1 - tokens) / rate * float64(time.Second))
	}
	return result, nil
}

func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func toInt(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	case string:
		parsed, _ := strconv.ParseInt(val, 10, 64)
		return parsed
	default:
		return 0
	}
}

func toFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case string:
		parsed, _ := strconv.ParseFloat(val, 64)
		return parsed
	default:
		return 0
	}
}
