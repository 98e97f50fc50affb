package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// mockHealthChecker is a HealthChecker that fails with err and records
// whether the readiness probe bounded its ping.
type mockHealthChecker struct {
	err         error
	calls       int
	hadDeadline bool
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	m.calls++
	_, m.hadDeadline = ctx.Deadline()
	return m.err
}

func readyz(t *testing.T, db, cache HealthChecker) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	h := NewHealthHandler(db, cache)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var response HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return rec, response
}

func TestHealthHandler_Healthz(t *testing.T) {
	h := NewHealthHandler(&mockHealthChecker{err: errors.New("down")}, nil)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ok" || response.Checks != nil {
		t.Errorf("liveness must not probe dependencies, got %+v", response)
	}
}

func TestHealthHandler_Readyz(t *testing.T) {
	refused := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	timeout := errors.New("redis: i/o timeout on 10.0.0.6:6379")

	tests := []struct {
		name         string
		db, cache    HealthChecker
		wantCode     int
		wantStatus   string
		wantPostgres string
		wantRedis    string
	}{
		{"all healthy", &mockHealthChecker{}, &mockHealthChecker{}, http.StatusOK, "ok", "ok", "ok"},
		{"database down", &mockHealthChecker{err: refused}, &mockHealthChecker{}, http.StatusServiceUnavailable, "unhealthy", "unavailable", "ok"},
		{"redis down", &mockHealthChecker{}, &mockHealthChecker{err: timeout}, http.StatusServiceUnavailable, "unhealthy", "ok", "unavailable"},
		{"both down", &mockHealthChecker{err: refused}, &mockHealthChecker{err: timeout}, http.StatusServiceUnavailable, "unhealthy", "unavailable", "unavailable"},
		{"nothing configured", nil, nil, http.StatusOK, "ok", "not configured", "not configured"},
		{"redis not configured", &mockHealthChecker{}, nil, http.StatusOK, "ok", "ok", "not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, response := readyz(t, tt.db, tt.cache)

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			if response.Status != tt.wantStatus {
				t.Errorf("expected status %q, got %q", tt.wantStatus, response.Status)
			}
			if response.Checks["postgres"] != tt.wantPostgres {
				t.Errorf("postgres check = %q, want %q", response.Checks["postgres"], tt.wantPostgres)
			}
			if response.Checks["redis"] != tt.wantRedis {
				t.Errorf("redis check = %q, want %q", response.Checks["redis"], tt.wantRedis)
			}

			body := rec.Body.String()
			for _, leak := range []string{"10.0.0.5", "10.0.0.6", "refused", "timeout"} {
				if strings.Contains(body, leak) {
					t.Errorf("response leaks %q: %s", leak, body)
				}
			}
		})
	}
}

func TestHealthHandler_ReadyzPingsEachDependencyWithDeadline(t *testing.T) {
	db := &mockHealthChecker{}
	cache := &mockHealthChecker{err: errors.New("down")}

	readyz(t, db, cache)

	for name, m := range map[string]*mockHealthChecker{"postgres": db, "redis": cache} {
		if m.calls != 1 {
			t.Errorf("%s pinged %d times, want 1", name, m.calls)
		}
		if !m.hadDeadline {
			t.Errorf("%s ping had no deadline", name)
		}
	}
}
