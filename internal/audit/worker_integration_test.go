//go:build integration

package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openpdv/pdvhost/internal/metrics"
	"github.com/openpdv/pdvhost/internal/model"
	"github.com/openpdv/pdvhost/internal/testutil"
)

type flakyStore struct {
	mu       sync.Mutex
	failures int
	stored   map[string]*model.SyncEvent
}

func (s *flakyStore) StoreSyncEvents(_ context.Context, events []*model.SyncEvent) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return 0, errors.New("database unavailable")
	}
	n := 0
	for _, e := range events {
		if _, ok := s.stored[e.EventID]; !ok {
			s.stored[e.EventID] = e
			n++
		}
	}
	return n, nil
}

func (s *flakyStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	opts, err := redis.ParseURL(testutil.RequireEnv(t, "REDIS_URL"))
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	if err := testutil.FlushRedis(context.Background(), client); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return client
}

func TestWorker_StoresRetriesAndDeadLetters(t *testing.T) {
	client := newRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := metrics.NewInMemory()
	ctx := context.Background()

	pub := NewPublisher(client, logger, recorder)
	for i := 0; i < 3; i++ {
		p := NewPayload("acc-1", "usuario", 200, i, "", "10.0.0.1", time.Millisecond, time.Now())
		if _, err := pub.Publish(ctx, p); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		Values: map[string]any{"payload": "{broken"},
	}).Err(); err != nil {
		t.Fatalf("xadd poison: %v", err)
	}

	store := &flakyStore{failures: 1, stored: map[string]*model.SyncEvent{}}
	w := NewWorker(client, store, logger, NewConsumerID(), recorder)
	w.SetBlockTimeout(100 * time.Millisecond)
	w.SetRetryInterval(10 * time.Millisecond)

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for store.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	<-errc

	if got := store.count(); got != 3 {
		t.Fatalf("stored = %d, want 3", got)
	}

	dlq, err := client.XLen(ctx, DeadLetterStreamKey).Result()
	if err != nil {
		t.Fatalf("xlen dlq: %v", err)
	}
	if dlq != 1 {
		t.Errorf("dead-letter length = %d, want 1", dlq)
	}

	pending, err := client.XPending(ctx, StreamKey, ConsumerGroup).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("pending = %d, want all acknowledged", pending.Count)
	}

	snap := recorder.Snapshot()
	if snap.AuditEvents["stored"] != 3 {
		t.Errorf("stored metric = %d, want 3", snap.AuditEvents["stored"])
	}
	if snap.AuditEvents["dead_lettered"] != 1 {
		t.Errorf("dead_lettered metric = %d, want 1", snap.AuditEvents["dead_lettered"])
	}
}

func TestWorker_AcksPoisonWhileStoreIsDown(t *testing.T) {
	client := newRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	pub := NewPublisher(client, logger, nil)
	if _, err := pub.Publish(ctx, NewPayload("acc-1", "nfe", 200, 1, "", "10.0.0.1", time.Millisecond, time.Now())); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		Values: map[string]any{"payload": "{broken"},
	}).Err(); err != nil {
		t.Fatalf("xadd poison: %v", err)
	}

	store := &flakyStore{failures: 1 << 20, stored: map[string]*model.SyncEvent{}}
	w := NewWorker(client, store, logger, NewConsumerID(), nil)
	w.SetBlockTimeout(100 * time.Millisecond)
	w.SetRetryInterval(time.Millisecond)

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if n, _ := client.XLen(ctx, DeadLetterStreamKey).Result(); n == 1 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := w.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	<-errc

	pending, err := client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: StreamKey,
		Group:  ConsumerGroup,
		Start:  "-",
		End:    "+",
		Count:  10,
	}).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want only the unstored event", len(pending))
	}
	if store.count() != 0 {
		t.Errorf("stored = %d, want 0", store.count())
	}
}

// gateStore blocks every call until released, ignoring cancellation.
type gateStore struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	flaky   *flakyStore
}

func (s *gateStore) StoreSyncEvents(ctx context.Context, events []*model.SyncEvent) (int, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.flaky.StoreSyncEvents(ctx, events)
}

func TestWorker_ShutdownWaitsForInFlightBatch(t *testing.T) {
	client := newRedis(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	pub := NewPublisher(client, logger, nil)
	for i := 0; i < 2; i++ {
		if _, err := pub.Publish(ctx, NewPayload("acc-1", "usuario", 200, i, "", "10.0.0.1", time.Millisecond, time.Now())); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	store := &gateStore{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		flaky:   &flakyStore{stored: map[string]*model.SyncEvent{}},
	}
	w := NewWorker(client, store, logger, NewConsumerID(), nil)
	w.SetBlockTimeout(100 * time.Millisecond)

	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	select {
	case <-store.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never reached the store")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- w.Shutdown(shutdownCtx) }()

	select {
	case err := <-shutdownErr:
		t.Fatalf("shutdown returned before the batch finished: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	close(store.release)

	if err := <-shutdownErr; err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	<-errc

	if got := store.flaky.count(); got != 2 {
		t.Fatalf("stored = %d, want 2", got)
	}
	pending, err := client.XPending(ctx, StreamKey, ConsumerGroup).Result()
	if err != nil {
		t.Fatalf("xpending: %v", err)
	}
	if pending.Count != 0 {
		t.Errorf("pending = %d, want the in-flight batch acknowledged", pending.Count)
	}
}
