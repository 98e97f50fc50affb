package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdvhost"

// PrometheusRecorder exports metrics through a dedicated registry.
type PrometheusRecorder struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	rows         *prometheus.CounterVec
	authFailures *prometheus.CounterVec
	rateLimited  prometheus.Counter
	auditEvents  *prometheus.CounterVec
	auditBatch   prometheus.Histogram
	auditLatency prometheus.Histogram
	auditDepth   prometheus.Gauge
}

// NewPrometheus registers the application collectors together with the Go
// runtime and process collectors.
func NewPrometheus() *PrometheusRecorder {
	p := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_requests_total",
			Help:      "Sync requests by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_request_duration_seconds",
			Help:      "Sync request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_rows_served_total",
			Help:      "Rows returned to terminals.",
		}, []string{"endpoint"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected credentials by kind.",
		}, []string{"kind"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		auditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_total",
			Help:      "Sync audit events by outcome.",
		}, []string{"result"}),
		auditBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_batch_size",
			Help:      "Audit events stored per batch.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500},
		}),
		auditLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audit_batch_duration_seconds",
			Help:      "Time spent storing an audit batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		auditDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_queue_depth",
			Help:      "Audit events pending or not yet delivered to the consumer group.",
		}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.requests,
		p.duration,
		p.rows,
		p.authFailures,
		p.rateLimited,
		p.auditEvents,
		p.auditBatch,
		p.auditLatency,
		p.auditDepth,
	)
	return p
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *PrometheusRecorder) IncSyncRequest(endpoint string, status int) {
	p.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func (p *PrometheusRecorder) ObserveSyncDuration(endpoint string, duration time.Duration) {
	p.duration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) ObserveRowsServed(endpoint string, rows int) {
	p.rows.WithLabelValues(endpoint).Add(float64(rows))
}

func (p *PrometheusRecorder) IncAuthFailure(kind string) {
	p.authFailures.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncRateLimited() {
	p.rateLimited.Inc()
}

func (p *PrometheusRecorder) IncAuditEvent(result string) {
	p.auditEvents.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) ObserveAuditBatch(size int, duration time.Duration) {
	p.auditBatch.Observe(float64(size))
	p.auditLatency.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) SetAuditQueueDepth(depth int64) {
	p.auditDepth.Set(float64(depth))
}
