package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openpdv/pdvhost/internal/metrics"
)

const (
	// StreamKey is the Redis stream carrying sync events.
	StreamKey = "stream:sync_events"

	// DeadLetterStreamKey receives messages the worker cannot decode.
	DeadLetterStreamKey = "stream:sync_events:dlq"

	// MaxStreamLen bounds the stream length (approximate trimming).
	MaxStreamLen = 100000

	// PublishTimeout caps a single asynchronous publish.
	PublishTimeout = 100 * time.Millisecond
)

// Publisher appends sync events to the audit stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a Publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "audit.publisher"),
		metrics: recorder,
	}
}

// Publish appends one event and returns its stream id.
func (p *Publisher) Publish(ctx context.Context, event EventPayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{"payload": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// Record publishes event in the background. Failures are logged and counted
// as dropped; the request that produced the event is never delayed.
func (p *Publisher) Record(event EventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		id, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish sync event",
				"endpoint", event.Endpoint,
				"account_id", event.AccountID,
				"error", err,
			)
			p.metrics.IncAuditEvent("dropped")
			return
		}
		p.logger.Debug("sync event published", "endpoint", event.Endpoint, "stream_id", id)
		p.metrics.IncAuditEvent("published")
	}()
}
