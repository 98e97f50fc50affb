package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openpdv/pdvhost/internal/auth"
	"github.com/openpdv/pdvhost/internal/cache"
	"github.com/openpdv/pdvhost/internal/metrics"
	"github.com/openpdv/pdvhost/internal/model"
)

type fakeLimiter struct {
	result *cache.RateLimitResult
	err    error
	keys   []string
}

func (f *fakeLimiter) CheckAccountRateLimit(_ context.Context, id string, _, _ int) (*cache.RateLimitResult, error) {
	f.keys = append(f.keys, "account:"+id)
	return f.result, f.err
}

func (f *fakeLimiter) CheckIPRateLimit(_ context.Context, ip string, _, _ int) (*cache.RateLimitResult, error) {
	f.keys = append(f.keys, "ip:"+ip)
	return f.result, f.err
}

func withPrincipal(r *http.Request, id string) *http.Request {
	return r.WithContext(auth.ContextWithPrincipal(r.Context(), &model.Principal{AccountID: id}))
}

func TestRateLimitAccount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		enabled    bool
		result     *cache.RateLimitResult
		err        error
		wantStatus int
		wantCalls  int
	}{
		{"disabled", false, nil, nil, http.StatusOK, 0},
		{"allowed", true, &cache.RateLimitResult{Allowed: true, Limit: 60, Remaining: 4}, nil, http.StatusOK, 1},
		{"rejected", true, &cache.RateLimitResult{Allowed: false, Limit: 60, RetryAfter: 3 * time.Second}, nil, http.StatusTooManyRequests, 1},
		{"redis down fails open", true, nil, errors.New("connection refused"), http.StatusOK, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			lim := &fakeLimiter{result: tt.result, err: tt.err}
			rec := metrics.NewInMemory()
			h := RateLimitAccount(RateLimitConfig{
				Logger:       discardLogger(),
				Limiter:      lim,
				Metrics:      rec,
				Enabled:      tt.enabled,
				AccountRPM:   60,
				AccountBurst: 5,
			})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, withPrincipal(httptest.NewRequest("GET", "/openpdv/host/usuario", nil), "acc-7"))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if len(lim.keys) != tt.wantCalls {
				t.Fatalf("limiter calls = %d, want %d", len(lim.keys), tt.wantCalls)
			}
			if tt.wantCalls == 1 && lim.keys[0] != "account:acc-7" {
				t.Errorf("limiter key = %q", lim.keys[0])
			}
			if tt.wantStatus == http.StatusTooManyRequests {
				if w.Header().Get("Retry-After") != "3" {
					t.Errorf("Retry-After = %q, want 3", w.Header().Get("Retry-After"))
				}
				if rec.Snapshot().RateLimited != 1 {
					t.Error("rejection not counted")
				}
			}
		})
	}
}

func TestRateLimitIP_UsesHostPart(t *testing.T) {
	t.Parallel()

	lim := &fakeLimiter{result: &cache.RateLimitResult{Allowed: true}}
	h := RateLimitIP(RateLimitConfig{
		Logger:  discardLogger(),
		Limiter: lim,
		Enabled: true,
		IPRPM:   120,
		IPBurst: 10,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/openpdv/host/nfe", nil)
	req.RemoteAddr = "10.1.2.3:51234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(lim.keys) != 1 || lim.keys[0] != "ip:10.1.2.3" {
		t.Errorf("limiter keys = %v", lim.keys)
	}
}
