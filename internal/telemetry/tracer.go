// Package telemetry installs the OpenTelemetry tracer provider used by the
// repository spans. Spans are exported over OTLP/HTTP.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName identifies the host in the trace backend.
	DefaultServiceName = "pdvhost"
	// DefaultEndpoint is the OTLP/HTTP collector address.
	DefaultEndpoint = "localhost:4318"
)

// TracerOption configures NewTracerProvider.
type TracerOption func(*tracerConfig)

type tracerConfig struct {
	enabled        bool
	serviceName    string
	serviceVersion string
	endpoint       string
	insecure       bool
	sampling       float64
	exporter       sdktrace.SpanExporter
	logger         *slog.Logger
}

// WithEnabled switches span export on.
func WithEnabled(enabled bool) TracerOption {
	return func(c *tracerConfig) { c.enabled = enabled }
}

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) TracerOption {
	return func(c *tracerConfig) {
		if name != "" {
			c.serviceName = name
		}
	}
}

// WithServiceVersion sets the service.version resource attribute.
func WithServiceVersion(version string) TracerOption {
	return func(c *tracerConfig) {
		if version != "" {
			c.serviceVersion = version
		}
	}
}

// WithEndpoint sets the collector host:port.
func WithEndpoint(endpoint string) TracerOption {
	return func(c *tracerConfig) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithInsecure sends spans over plain HTTP.
func WithInsecure(insecure bool) TracerOption {
	return func(c *tracerConfig) { c.insecure = insecure }
}

// WithSampling sets the parent-based trace id ratio.
func WithSampling(ratio float64) TracerOption {
	return func(c *tracerConfig) { c.sampling = ratio }
}

// WithExporter replaces the OTLP exporter.
func WithExporter(exp sdktrace.SpanExporter) TracerOption {
	return func(c *tracerConfig) { c.exporter = exp }
}

// WithLogger sets the logger used for setup messages.
func WithLogger(logger *slog.Logger) TracerOption {
	return func(c *tracerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Tracing owns the process tracer provider.
type Tracing struct {
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
	logger   *slog.Logger
}

// NewTracerProvider builds the tracer provider and installs it, with the
// W3C propagators, as the global one. When tracing is disabled the
// provider is a no-op and nothing is installed.
func NewTracerProvider(ctx context.Context, opts ...TracerOption) (*Tracing, error) {
	cfg := &tracerConfig{
		serviceName:    DefaultServiceName,
		serviceVersion: "unknown",
		endpoint:       DefaultEndpoint,
		sampling:       1,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.enabled {
		cfg.logger.Info("tracing disabled")
		return &Tracing{provider: noop.NewTracerProvider(), logger: cfg.logger}, nil
	}
	if cfg.sampling < 0 || cfg.sampling > 1 {
		return nil, fmt.Errorf("sampling ratio %v out of range [0, 1]", cfg.sampling)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.serviceName),
			semconv.ServiceVersion(cfg.serviceVersion),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	exporter := cfg.exporter
	if exporter == nil {
		exporter, err = newOTLPExporter(ctx, cfg.endpoint, cfg.insecure)
		if err != nil {
			return nil, err
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.sampling))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.insecure {
		cfg.logger.Warn("tracing exports over plain HTTP")
	}
	cfg.logger.Info("tracing initialized",
		"endpoint", cfg.endpoint,
		"service", cfg.serviceName,
		"sampling_ratio", cfg.sampling,
	)

	return &Tracing{provider: tp, sdk: tp, logger: cfg.logger}, nil
}

func newOTLPExporter(ctx context.Context, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
	}
	return exp, nil
}

// Enabled reports whether spans are exported.
func (t *Tracing) Enabled() bool {
	return t.sdk != nil
}

// Tracer returns a named tracer from the provider.
func (t *Tracing) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.provider.Tracer(name, opts...)
}

// Shutdown flushes pending spans and stops the exporter. It is a no-op
// when tracing is disabled.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if t.sdk == nil {
		return nil
	}
	if err := t.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	t.logger.Debug("tracer provider shut down")
	return nil
}
