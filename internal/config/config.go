// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata" // terminals run without a system zoneinfo

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	AppPort     int    `env:"APP_PORT" envDefault:"8080"`
	AppTimezone string `env:"APP_TIMEZONE" envDefault:"America/Sao_Paulo"`

	// Database (PostgreSQL)
	DatabaseURL      string `env:"DATABASE_URL,required,notEmpty"`
	DBMaxConns       int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns       int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	DBConnectRetries uint64 `env:"DB_CONNECT_RETRIES" envDefault:"5"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required,notEmpty"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Authorization
	AuthMinDuration time.Duration `env:"AUTH_MIN_DURATION" envDefault:"200ms"`

	// Rate limiting
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPM     int  `env:"RATE_LIMIT_RPM" envDefault:"600"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"60"`
	RateLimitIPRPM   int  `env:"RATE_LIMIT_IP_RPM" envDefault:"1200"`
	RateLimitIPBurst int  `env:"RATE_LIMIT_IP_BURST" envDefault:"120"`

	// Fiscal sequence seed used while sis_config has no nfe.numero row.
	FiscalSequenceSeed int64 `env:"FISCAL_SEQUENCE_SEED" envDefault:"0"`

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// Tracing (OTLP over HTTP)
	TracingEnabled  bool    `env:"OTEL_TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTLPInsecure    bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
	ServiceName     string  `env:"OTEL_SERVICE_NAME" envDefault:"pdvhost"`
	TracingSampling float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"0.1"`

	// Sync audit trail
	AuditEnabled   bool `env:"AUDIT_ENABLED" envDefault:"true"`
	AuditBatchSize int  `env:"AUDIT_BATCH_SIZE" envDefault:"500"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Location returns the zone used for cutoffs sent without an offset.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE %q: %w", c.AppTimezone, err)
	}
	return loc, nil
}

// Validate checks values the parser cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.FiscalSequenceSeed < 0 {
		errs = append(errs, errors.New("FISCAL_SEQUENCE_SEED must not be negative"))
	}
	if c.DBMinConns > c.DBMaxConns {
		errs = append(errs, errors.New("DB_MIN_CONNS must not exceed DB_MAX_CONNS"))
	}
	if c.AuthMinDuration < 0 {
		errs = append(errs, errors.New("AUTH_MIN_DURATION must not be negative"))
	}
	if c.RateLimitRPM < 0 || c.RateLimitIPRPM < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if c.TracingSampling < 0 || c.TracingSampling > 1 {
		errs = append(errs, errors.New("OTEL_TRACES_SAMPLER_ARG must be between 0 and 1"))
	}
	if c.TracingEnabled && c.OTLPEndpoint == "" {
		errs = append(errs, errors.New("OTEL_EXPORTER_OTLP_ENDPOINT is required when tracing is enabled"))
	}
	if c.AuditBatchSize <= 0 {
		errs = append(errs, errors.New("AUDIT_BATCH_SIZE must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
