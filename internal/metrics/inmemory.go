package metrics

import (
	"maps"
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	SyncRequests    map[string]uint64 // keyed by endpoint
	SyncErrors      map[string]uint64 // responses with status >= 400, keyed by endpoint
	RowsServed      map[string]uint64
	DurationCount   uint64
	DurationTotalNs int64
	AuthFailures    map[string]uint64 // keyed by kind
	RateLimited     uint64
	AuditEvents     map[string]uint64 // keyed by result
	AuditBatches    uint64
	AuditQueueDepth int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{snap: Snapshot{
		SyncRequests: make(map[string]uint64),
		SyncErrors:   make(map[string]uint64),
		RowsServed:   make(map[string]uint64),
		AuthFailures: make(map[string]uint64),
		AuditEvents:  make(map[string]uint64),
	}}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.snap
	s.SyncRequests = maps.Clone(m.snap.SyncRequests)
	s.SyncErrors = maps.Clone(m.snap.SyncErrors)
	s.RowsServed = maps.Clone(m.snap.RowsServed)
	s.AuthFailures = maps.Clone(m.snap.AuthFailures)
	s.AuditEvents = maps.Clone(m.snap.AuditEvents)
	return s
}

// IncSyncRequest counts a finished sync request.
func (m *InMemoryRecorder) IncSyncRequest(endpoint string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.SyncRequests[endpoint]++
	if status >= 400 {
		m.snap.SyncErrors[endpoint]++
	}
}

// ObserveSyncDuration records request duration.
func (m *InMemoryRecorder) ObserveSyncDuration(endpoint string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.DurationCount++
	m.snap.DurationTotalNs += duration.Nanoseconds()
}

// ObserveRowsServed adds to the number of rows returned by endpoint.
func (m *InMemoryRecorder) ObserveRowsServed(endpoint string, rows int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.RowsServed[endpoint] += uint64(rows)
}

// IncAuthFailure counts a rejected credential.
func (m *InMemoryRecorder) IncAuthFailure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.AuthFailures[kind]++
}

// IncRateLimited counts a request rejected by the rate limiter.
func (m *InMemoryRecorder) IncRateLimited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.RateLimited++
}

// IncAuditEvent counts an audit event by outcome.
func (m *InMemoryRecorder) IncAuditEvent(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.AuditEvents[result]++
}

// ObserveAuditBatch counts a stored audit batch.
func (m *InMemoryRecorder) ObserveAuditBatch(size int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.AuditBatches++
}

// SetAuditQueueDepth records the pending audit backlog.
func (m *InMemoryRecorder) SetAuditQueueDepth(depth int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.AuditQueueDepth = depth
}
