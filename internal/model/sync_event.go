package model

import "time"

// SyncEvent records one authorized sync request.
type SyncEvent struct {
	EventID        string    `json:"event_id" db:"event_id"`
	AccountID      string    `json:"account_id" db:"account_id"`
	Endpoint       string    `json:"endpoint" db:"endpoint"`
	Status         int       `json:"status" db:"status"`
	RowsServed     int       `json:"rows_served" db:"rows_served"`
	RequestID      string    `json:"request_id" db:"request_id"`
	ClientHash     string    `json:"client_hash" db:"client_hash"`
	DurationMicros int64     `json:"duration_micros" db:"duration_micros"`
	OccurredAt     time.Time `json:"occurred_at" db:"occurred_at"`
}

// IsError reports whether the request failed.
func (e *SyncEvent) IsError() bool {
	return e.Status >= 400
}

// SyncDailyStat aggregates the sync events of one account, day and endpoint.
type SyncDailyStat struct {
	AccountID  string    `json:"account_id" db:"account_id"`
	Day        time.Time `json:"day" db:"day"`
	Endpoint   string    `json:"endpoint" db:"endpoint"`
	Requests   int64     `json:"requests" db:"requests"`
	Errors     int64     `json:"errors" db:"errors"`
	RowsServed int64     `json:"rows_served" db:"rows_served"`
	LastSeen   time.Time `json:"last_seen" db:"last_seen"`
}
