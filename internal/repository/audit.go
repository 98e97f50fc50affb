package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/openpdv/pdvhost/internal/model"
)

type statKey struct {
	account  string
	day      time.Time
	endpoint string
}

// StoreSyncEvents inserts a batch of audit events and folds the newly
// inserted ones into sync_daily_stats, in one transaction. Events already
// stored (same event id) are skipped, so redelivered batches do not count
// twice. It returns the number of events inserted.
func (r *Repository) StoreSyncEvents(ctx context.Context, events []*model.SyncEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	ctx, span := startSpan(ctx, r.tracer, "StoreSyncEvents")
	defer span.End()

	inserted := 0
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range events {
			batch.Queue(`
				INSERT INTO sync_event (
					event_id, account_id, endpoint, status, rows_served,
					request_id, client_hash, duration_micros, occurred_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (event_id) DO NOTHING
			`, e.EventID, e.AccountID, e.Endpoint, e.Status, e.RowsServed,
				e.RequestID, e.ClientHash, e.DurationMicros, e.OccurredAt)
		}

		results := tx.SendBatch(ctx, batch)
		stats := make(map[statKey]*model.SyncDailyStat)
		var order []statKey
		for _, e := range events {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("insert event %s: %w", e.EventID, err)
			}
			if tag.RowsAffected() == 0 {
				continue
			}
			inserted++

			at := e.OccurredAt.UTC()
			k := statKey{account: e.AccountID, day: at.Truncate(24 * time.Hour), endpoint: e.Endpoint}
			s, ok := stats[k]
			if !ok {
				s = &model.SyncDailyStat{AccountID: k.account, Day: k.day, Endpoint: k.endpoint}
				stats[k] = s
				order = append(order, k)
			}
			s.Requests++
			s.RowsServed += int64(e.RowsServed)
			if e.IsError() {
				s.Errors++
			}
			if at.After(s.LastSeen) {
				s.LastSeen = at
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}

		for _, k := range order {
			s := stats[k]
			_, err := tx.Exec(ctx, `
				INSERT INTO sync_daily_stats (account_id, day, endpoint, requests, errors, rows_served, last_seen)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (account_id, day, endpoint) DO UPDATE SET
					requests    = sync_daily_stats.requests + EXCLUDED.requests,
					errors      = sync_daily_stats.errors + EXCLUDED.errors,
					rows_served = sync_daily_stats.rows_served + EXCLUDED.rows_served,
					last_seen   = GREATEST(sync_daily_stats.last_seen, EXCLUDED.last_seen)
			`, s.AccountID, s.Day, s.Endpoint, s.Requests, s.Errors, s.RowsServed, s.LastSeen)
			if err != nil {
				return fmt.Errorf("update daily stats: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		recordError(span, err)
		return 0, err
	}
	return inserted, nil
}

// DailyStats returns the per-account daily aggregates from since onwards,
// newest day first.
func (r *Repository) DailyStats(ctx context.Context, since time.Time) ([]model.SyncDailyStat, error) {
	ctx, span := startSpan(ctx, r.tracer, "DailyStats")
	defer span.End()

	rows, err := r.db.Query(ctx, `
		SELECT account_id, day, endpoint, requests, errors, rows_served, last_seen
		FROM sync_daily_stats
		WHERE day >= $1
		ORDER BY day DESC, account_id, endpoint
	`, since.UTC().Truncate(24*time.Hour))
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("daily stats: %w", err)
	}
	stats, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.SyncDailyStat])
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("daily stats: %w", err)
	}
	return stats, nil
}
