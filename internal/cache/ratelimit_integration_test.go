//go:build integration

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/openpdv/pdvhost/internal/testutil"
)

// TestAccountRateLimitConcurrency verifies the token bucket under concurrent load.
func TestAccountRateLimitConcurrency(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, testutil.RequireEnv(t, "REDIS_URL"))
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	defer c.Close()

	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	const rpm, burst = 10, 5
	var allowed, rejected int64

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				res, err := c.CheckAccountRateLimit(ctx, "acc-concurrent", rpm, burst)
				if err != nil {
					t.Errorf("CheckAccountRateLimit: %v", err)
					return
				}
				if res.Allowed {
					atomic.AddInt64(&allowed, 1)
				} else {
					atomic.AddInt64(&rejected, 1)
				}
			}
		}()
	}
	wg.Wait()

	if allowed > burst+1 {
		t.Errorf("allowed %d requests, want at most %d", allowed, burst+1)
	}
	if rejected == 0 {
		t.Error("expected some requests to be rejected")
	}
}

func TestIPRateLimitIsolatedFromAccounts(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, testutil.RequireEnv(t, "REDIS_URL"))
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	defer c.Close()
	_ = testutil.FlushRedis(ctx, c.Client())

	for i := 0; i < 2; i++ {
		if res, _ := c.CheckAccountRateLimit(ctx, "shared", 1, 2); !res.Allowed {
			t.Fatalf("account request %d rejected", i)
		}
	}
	res, err := c.CheckIPRateLimit(ctx, "shared", 1, 2)
	if err != nil || !res.Allowed {
		t.Errorf("ip bucket should be independent: %+v, %v", res, err)
	}
}
