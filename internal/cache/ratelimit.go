package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rateLimitAccountPrefix = "pdvhost:ratelimit:account:"
	rateLimitIPPrefix      = "pdvhost:ratelimit:ip:"
	rateLimitTTL           = 120 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// tokenBucketScript refills and consumes a token atomically.
// Returns {allowed, retry_after_seconds, remaining_tokens}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])      -- tokens per second
	local burst = tonumber(ARGV[2])     -- bucket capacity
	local now = tonumber(ARGV[3])       -- seconds, fractional
	local ttl = tonumber(ARGV[4])

	local data = redis.call('HMGET', key, 'tokens', 'last_update')
	local tokens = tonumber(data[1]) or burst
	local last_update = tonumber(data[2]) or now

	tokens = math.min(burst, tokens + (math.max(0, now - last_update) * rate))

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'last_update', tostring(now))
	redis.call('EXPIRE', key, ttl)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckAccountRateLimit consumes a token from the account's bucket.
// A zero rate disables the limit.
func (c *Cache) CheckAccountRateLimit(ctx context.Context, accountID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return unlimited(burst), nil
	}
	return c.checkRateLimit(ctx, rateLimitAccountPrefix+accountID, ratePerMinute, burst)
}

// CheckIPRateLimit consumes a token from the bucket of a client address.
// Used in front of the gate to slow down secret guessing. The address is
// hashed so raw IPs are not stored.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return unlimited(burst), nil
	}
	return c.checkRateLimit(ctx, rateLimitIPPrefix+hashIP(ip), ratePerMinute, burst)
}

func (c *Cache) checkRateLimit(ctx context.Context, key string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if burst <= 0 {
		burst = 1
	}
	rate := float64(ratePerMinute) / 60.0
	now := time.Now()

	res, err := tokenBucketScript.Run(ctx, c.client,
		[]string{key},
		rate, burst, float64(now.UnixMilli())/1000.0, int(rateLimitTTL.Seconds()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("run token bucket: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("token bucket returned %d values", len(res))
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Limit:      ratePerMinute,
		Remaining:  res[2],
		ResetAt:    now.Add(refillTime(rate, burst, res[2])),
		RetryAfter: time.Duration(res[1]) * time.Second,
	}, nil
}

// refillTime is how long an idle bucket takes to fill up again.
func refillTime(rate float64, burst int, remaining int64) time.Duration {
	missing := float64(int64(burst) - remaining)
	if missing <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(missing/rate)) * time.Second
}

func unlimited(burst int) *RateLimitResult {
	return &RateLimitResult{Allowed: true, Remaining: int64(burst), ResetAt: time.Now()}
}

// hashIP creates a truncated SHA256 hash of an IP address.
func hashIP(ip string) string {
	hash := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(hash[:8])
}
