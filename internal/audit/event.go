// Package audit records the sync requests served to each terminal and
// folds them into per-day statistics.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/openpdv/pdvhost/internal/model"
)

const (
	clientHashLength  = 16
	maxEndpointLength = 32
	maxRequestIDLen   = 64
)

// EventPayload is the compact form of a sync event on the stream.
type EventPayload struct {
	EventID    string `json:"id"`
	AccountID  string `json:"acc"`
	Endpoint   string `json:"ep"`
	Status     int    `json:"st"`
	Rows       int    `json:"n,omitempty"`
	RequestID  string `json:"rid,omitempty"`
	ClientHash string `json:"ch"`
	DurationUS int64  `json:"d"`
	OccurredAt int64  `json:"t"` // Unix milliseconds
}

// NewPayload builds a payload for one served request. The event id is a
// fresh ULID so redelivered messages are stored once.
func NewPayload(accountID, endpoint string, status, rows int, requestID, clientIP string, took time.Duration, at time.Time) EventPayload {
	return EventPayload{
		EventID:    ulid.Make().String(),
		AccountID:  accountID,
		Endpoint:   endpoint,
		Status:     status,
		Rows:       rows,
		RequestID:  truncate(requestID, maxRequestIDLen),
		ClientHash: ClientHash(clientIP, at),
		DurationUS: took.Microseconds(),
		OccurredAt: at.UnixMilli(),
	}
}

// Event converts the payload into its stored form.
func (p EventPayload) Event() *model.SyncEvent {
	return &model.SyncEvent{
		EventID:        p.EventID,
		AccountID:      p.AccountID,
		Endpoint:       p.Endpoint,
		Status:         p.Status,
		RowsServed:     p.Rows,
		RequestID:      p.RequestID,
		ClientHash:     p.ClientHash,
		DurationMicros: p.DurationUS,
		OccurredAt:     time.UnixMilli(p.OccurredAt).UTC(),
	}
}

// Validate checks a payload read back from the stream.
func (p EventPayload) Validate() error {
	if _, err := ulid.ParseStrict(p.EventID); err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	if p.AccountID == "" {
		return fmt.Errorf("account id is required")
	}
	if p.Endpoint == "" || len(p.Endpoint) > maxEndpointLength {
		return fmt.Errorf("endpoint length out of bounds")
	}
	if p.Status < 100 || p.Status > 599 {
		return fmt.Errorf("status %d out of range", p.Status)
	}
	if p.Rows < 0 {
		return fmt.Errorf("rows must not be negative")
	}
	if len(p.ClientHash) != clientHashLength || !isHex(p.ClientHash) {
		return fmt.Errorf("client hash must be %d hex chars", clientHashLength)
	}
	if p.DurationUS < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	if p.OccurredAt <= 0 {
		return fmt.Errorf("occurred at must be set")
	}
	return nil
}

// ClientHash identifies a caller address without storing it. The salt
// rotates daily (UTC), so hashes cannot be joined across days.
func ClientHash(ip string, at time.Time) string {
	salt := "pdvhost:" + at.UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(ip + salt))
	return hex.EncodeToString(sum[:])[:clientHashLength]
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}
