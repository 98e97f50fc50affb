package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncSyncRequest(endpoint string, status int)                  {}
func (n *NoopRecorder) ObserveSyncDuration(endpoint string, duration time.Duration) {}
func (n *NoopRecorder) ObserveRowsServed(endpoint string, rows int)                 {}
func (n *NoopRecorder) IncAuthFailure(kind string)                                  {}
func (n *NoopRecorder) IncRateLimited()                                             {}
func (n *NoopRecorder) IncAuditEvent(result string)                                 {}
func (n *NoopRecorder) ObserveAuditBatch(size int, duration time.Duration)          {}
func (n *NoopRecorder) SetAuditQueueDepth(depth int64)                              {}
