package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	ErrLimiterUnconfigured = errors.New("rate_limiter_unconfigured")
	ErrEmptyBucketKey      = errors.New("rate_limiter_empty_key")
	ErrInvalidPolicy       = errors.New("rate_limiter_invalid_policy")
	ErrMalformedReply      = errors.New("rate_limiter_malformed_reply")
)

// takeScript refills the bucket from the redis clock, then takes ARGV[3]
// tokens if available. Reply: {allowed, remaining, retry_after_ms, now_ms}.
var takeScript = redis.NewScript(`
local rate  = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local cost  = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) / 1000 * rate)
end

local allowed = 0
local wait = 0
if tokens >= cost then
  allowed = 1
  tokens = tokens - cost
else
  wait = math.ceil((cost - tokens) / rate * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tostring(tokens), wait, now}
`)

// BucketPolicy is a refill rate in tokens per second and a bucket size.
type BucketPolicy struct {
	Rate  float64
	Burst int
}

func (p BucketPolicy) validate() error {
	if p.Rate <= 0 || p.Burst <= 0 || math.IsInf(p.Rate, 0) || math.IsNaN(p.Rate) {
		return ErrInvalidPolicy
	}
	return nil
}

// idleTTL keeps a bucket around for twice the time it takes to refill.
func (p BucketPolicy) idleTTL() time.Duration {
	ttl := time.Duration(math.Ceil(2*float64(p.Burst)/p.Rate)) * time.Second
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// TokenBucket is a redis-backed bucket shared by every API replica.
type TokenBucket struct {
	client redis.Scripter
}

func NewTokenBucket(client redis.Scripter) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

// Take removes one token from the bucket at key.
func (b *TokenBucket) Take(ctx context.Context, key string, policy BucketPolicy) (Decision, error) {
	denied := Decision{Limit: policy.Burst}
	switch {
	case b == nil || b.client == nil:
		return denied, ErrLimiterUnconfigured
	case key == "":
		return denied, ErrEmptyBucketKey
	}
	if err := policy.validate(); err != nil {
		return denied, err
	}

	reply, err := takeScript.Run(ctx, b.client, []string{key},
		policy.Rate, policy.Burst, 1, policy.idleTTL().Milliseconds(),
	).Slice()
	if err != nil {
		return denied, err
	}
	if len(reply) != 4 {
		return denied, ErrMalformedReply
	}

	wait := time.Duration(replyNumber(reply[2])) * time.Millisecond
	return Decision{
		Allowed:    replyNumber(reply[0]) == 1,
		Limit:      policy.Burst,
		Remaining:  int(math.Floor(replyNumber(reply[1]))),
		RetryAfter: wait,
		ResetAt:    time.UnixMilli(int64(replyNumber(reply[3]))).Add(wait),
	}, nil
}

// replyNumber reads an integer or a stringified float from a Lua reply.
func replyNumber(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}
