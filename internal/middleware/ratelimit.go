package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/openpdv/pdvhost/internal/auth"
	"github.com/openpdv/pdvhost/internal/cache"
	"github.com/openpdv/pdvhost/internal/metrics"
)

// Limiter consumes rate limit tokens.
type Limiter interface {
	CheckAccountRateLimit(ctx context.Context, accountID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter Limiter
	Metrics metrics.Recorder
	Enabled bool
	// Per authenticated account.
	AccountRPM   int
	AccountBurst int
	// Per client address, applied before authorization.
	IPRPM   int
	IPBurst int
}

// RateLimitAccount limits requests per account. Must be applied after
// Authorize.
func RateLimitAccount(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Limiter == nil {
		return passthrough
	}
	return rateLimit(cfg, "account", func(r *http.Request) (string, int, int, bool) {
		p := auth.PrincipalFromContext(r.Context())
		if p == nil {
			return "", 0, 0, false
		}
		return p.AccountID, cfg.AccountRPM, cfg.AccountBurst, true
	}, cfg.Limiter.CheckAccountRateLimit)
}

// RateLimitIP limits requests per client address.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Limiter == nil {
		return passthrough
	}
	return rateLimit(cfg, "ip", func(r *http.Request) (string, int, int, bool) {
		return clientIP(r), cfg.IPRPM, cfg.IPBurst, true
	}, cfg.Limiter.CheckIPRateLimit)
}

func passthrough(next http.Handler) http.Handler { return next }

type checkFunc func(ctx context.Context, key string, rpm, burst int) (*cache.RateLimitResult, error)

func rateLimit(cfg RateLimitConfig, kind string, keyOf func(*http.Request) (string, int, int, bool), check checkFunc) func(http.Handler) http.Handler {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			key, rpm, burst, ok := keyOf(r)
			if !ok || rpm <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			result, err := check(r.Context(), key, rpm, burst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("type", kind),
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				// Fail open: a Redis outage must not stop the registers.
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result)

			if !result.Allowed {
				cfg.Metrics.IncRateLimited()
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("type", kind),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)

				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded",
					fmt.Sprintf("retry after %d seconds", int(result.RetryAfter.Seconds())))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, res *cache.RateLimitResult) {
	if res.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Add(time.Second-1).Unix(), 10))
}

// clientIP returns the host part of RemoteAddr. chi's RealIP middleware
// has already applied X-Forwarded-For / X-Real-IP when configured.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
