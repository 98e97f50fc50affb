package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/openpdv/pdvhost/internal/metrics"
	"github.com/openpdv/pdvhost/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group shared by audit workers.
	ConsumerGroup = "audit_workers"

	DefaultBatchSize       = 500
	DefaultBlockTimeout    = 5 * time.Second
	DefaultMaxRetries      = 3
	DefaultRetryInterval   = time.Second
	DefaultClaimInterval   = 10 * time.Second
	DefaultClaimIdle       = 30 * time.Second
	DefaultMetricsInterval = 5 * time.Second
	// DefaultBatchTimeout bounds the work on a batch once it has been read,
	// including store retries, dead-lettering and acknowledgement.
	DefaultBatchTimeout = 30 * time.Second

	deadLetterMaxLen = 10000
)

// Store persists decoded sync events. It returns how many were new.
type Store interface {
	StoreSyncEvents(ctx context.Context, events []*model.SyncEvent) (int, error)
}

// Worker drains the audit stream into the Store.
type Worker struct {
	redis           *redis.Client
	store           Store
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	batchSize       int
	blockTimeout    time.Duration
	maxRetries      uint64
	retryInterval   time.Duration
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration
	batchTimeout    time.Duration
	claimStartID    string
	lastClaim       time.Time
	lastMetrics     time.Time

	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
	mu       sync.Mutex
}

// NewWorker creates a Worker reading as consumerID.
func NewWorker(client *redis.Client, store Store, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:           client,
		store:           store,
		logger:          logger.With("component", "audit.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		retryInterval:   DefaultRetryInterval,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		batchTimeout:    DefaultBatchTimeout,
		claimStartID:    "0-0",
	}
}

// SetBatchSize overrides the number of messages read per batch.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetBlockTimeout overrides how long a read blocks on an empty stream.
func (w *Worker) SetBlockTimeout(d time.Duration) {
	if d > 0 {
		w.blockTimeout = d
	}
}

// SetRetryInterval overrides the initial delay between store attempts.
func (w *Worker) SetRetryInterval(d time.Duration) {
	if d > 0 {
		w.retryInterval = d
	}
}

// SetClaimIdle overrides the idle time after which pending messages of
// other consumers are reclaimed.
func (w *Worker) SetClaimIdle(d time.Duration) {
	if d > 0 {
		w.claimIdle = d
	}
}

// SetBatchTimeout overrides how long a batch may take once read.
func (w *Worker) SetBatchTimeout(d time.Duration) {
	if d > 0 {
		w.batchTimeout = d
	}
}

// Run consumes the stream until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("audit worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	w.logger.Info("audit worker started")

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()
		if draining {
			w.logger.Info("audit worker draining, stopping")
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("audit worker stopping")
			return ctx.Err()
		default:
		}

		if err := w.processOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("audit batch failed", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// Shutdown stops reading and waits for the batch in flight, if any, to be
// stored and acknowledged. A batch is never abandoned halfway by Shutdown;
// only ctx expiring makes Shutdown return early.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	select {
	case <-done:
		w.logger.Info("audit worker shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("audit worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) ensureGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}
	if len(messages) == 0 {
		if messages, err = w.readBatch(ctx); err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	// Messages read are owned by this consumer until acked, so the batch
	// outlives a shutdown request.
	bctx, cancel := w.batchContext(ctx)
	defer cancel()

	batch := decodeMessages(messages)
	w.settlePoison(bctx, batch.poison)
	if len(batch.events) > 0 {
		if err := w.storeWithRetry(bctx, batch.events); err != nil {
			// Left pending; another pass or consumer reclaims them.
			return err
		}
	}
	return w.ack(bctx, batch.ids)
}

func (w *Worker) batchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), w.batchTimeout)
}

// settlePoison moves undecodable messages to the dead-letter stream and
// acks them at once, so a failing store cannot keep them pending.
func (w *Worker) settlePoison(ctx context.Context, poison []poisonMessage) {
	settled := make([]string, 0, len(poison))
	for _, p := range poison {
		if w.deadLetter(ctx, p) {
			settled = append(settled, p.msg.ID)
		}
	}
	if err := w.ack(ctx, settled); err != nil {
		w.logger.Warn("failed to ack dead-lettered messages", "count", len(settled), "error", err)
	}
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimStartID = next
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetAuditQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

func (w *Worker) storeWithRetry(ctx context.Context, events []*model.SyncEvent) error {
	start := time.Now()
	var stored int

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, w.maxRetries), ctx)

	op := func() error {
		n, err := w.store.StoreSyncEvents(ctx, events)
		if err != nil {
			return err
		}
		stored = n
		return nil
	}
	notify := func(err error, next time.Duration) {
		w.logger.Warn("storing audit batch failed, retrying",
			"batch_size", len(events),
			"retry_in", next,
			"error", err,
		)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		for range events {
			w.metrics.IncAuditEvent("failed")
		}
		return fmt.Errorf("store audit batch: %w", err)
	}

	took := time.Since(start)
	w.metrics.ObserveAuditBatch(len(events), took)
	for i := 0; i < stored; i++ {
		w.metrics.IncAuditEvent("stored")
	}
	w.logger.Info("audit batch stored",
		"events", len(events),
		"new", stored,
		"duration_ms", float64(took.Microseconds())/1000,
	)
	return nil
}

func (w *Worker) deadLetter(ctx context.Context, p poisonMessage) bool {
	w.logger.Warn("dead-lettering audit message",
		"message_id", p.msg.ID,
		"reason", p.reason,
		"detail", p.detail,
	)
	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{
			"original_id":      p.msg.ID,
			"original_stream":  StreamKey,
			"reason":           p.reason,
			"detail":           p.detail,
			"payload":          p.msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		// Stays pending and is dead-lettered again when reclaimed.
		w.logger.Error("failed to write dead-letter message", "message_id", p.msg.ID, "error", err)
		return false
	}
	w.metrics.IncAuditEvent("dead_lettered")
	return true
}

func (w *Worker) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

type poisonMessage struct {
	msg    redis.XMessage
	reason string
	detail string
}

type decodedBatch struct {
	events []*model.SyncEvent
	ids    []string // ids of the decoded events
	poison []poisonMessage
}

func decodeMessages(messages []redis.XMessage) decodedBatch {
	batch := decodedBatch{
		events: make([]*model.SyncEvent, 0, len(messages)),
		ids:    make([]string, 0, len(messages)),
	}
	for _, msg := range messages {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			batch.poison = append(batch.poison, poisonMessage{msg, "invalid_format", "payload field missing or not a string"})
			continue
		}
		var p EventPayload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			batch.poison = append(batch.poison, poisonMessage{msg, "unmarshal_error", err.Error()})
			continue
		}
		if err := p.Validate(); err != nil {
			batch.poison = append(batch.poison, poisonMessage{msg, "validation_error", err.Error()})
			continue
		}
		batch.events = append(batch.events, p.Event())
		batch.ids = append(batch.ids, msg.ID)
	}
	return batch
}
