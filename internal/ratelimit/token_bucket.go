package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket lives in a hash {tokens, ts}; ts is redis server time in ms.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
local elapsed = math.max(0, now - last)
tokens = math.min(burst, tokens + elapsed * rate / 1000)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tostring(tokens)}
`

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type Decision struct {
	Allowed    bool
	Remaining  float64
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(tokenBucketScript)}
}

// Take removes one token from the bucket at key, refilling at rate tokens per
// second up to burst.
func (b *TokenBucket) Take(ctx context.Context, key string, rate float64, burst int) (Decision, error) {
	if b == nil || b.client == nil {
		return Decision{}, errors.New("token bucket not configured")
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return Decision{}, errors.New("token bucket key, rate and burst are required")
	}

	res, err := b.script.Run(ctx, b.client, []string{key}, rate, burst, bucketTTL(rate, burst).Milliseconds()).Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) < 2 {
		return Decision{}, errors.New("unexpected token bucket reply")
	}
	return decide(res[0], res[1], rate), nil
}

func decide(allowedRaw, tokensRaw any, rate float64) Decision {
	d := Decision{Allowed: toInt64(allowedRaw) == 1, Remaining: toFloat64(tokensRaw)}
	if !d.Allowed && rate > 0 {
		d.RetryAfter = time.Duration((1 - d.Remaining) / rate * float64(time.Second))
	}
	return d
}

// bucketTTL keeps an idle bucket around long enough to refill twice.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(2 * float64(burst) / rate)
	return time.Duration(math.Max(seconds, 1)) * time.Second
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case string:
		n, _ := strconv.ParseInt(val, 10, 64)
		return n
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch val := v.(type) {
	case int64:
		return float64(val)
	case float64:
		return val
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	default:
		return 0
	}
}
