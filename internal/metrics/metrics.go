// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
type Recorder interface {
	// Sync endpoint metrics
	IncSyncRequest(endpoint string, status int)
	ObserveSyncDuration(endpoint string, duration time.Duration)
	ObserveRowsServed(endpoint string, rows int)

	// Access control metrics
	IncAuthFailure(kind string) // kind: "unauthorized" or "forbidden"
	IncRateLimited()

	// Audit trail metrics
	IncAuditEvent(result string) // result: "published", "dropped", "stored", "dead_lettered", "failed"
	ObserveAuditBatch(size int, duration time.Duration)
	SetAuditQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
