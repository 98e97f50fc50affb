// Package main is the entrypoint for the OpenPDV host sync server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/openpdv/pdvhost/internal/audit"
	"github.com/openpdv/pdvhost/internal/auth"
	"github.com/openpdv/pdvhost/internal/cache"
	"github.com/openpdv/pdvhost/internal/config"
	"github.com/openpdv/pdvhost/internal/dateparse"
	"github.com/openpdv/pdvhost/internal/handler"
	"github.com/openpdv/pdvhost/internal/metrics"
	"github.com/openpdv/pdvhost/internal/model"
	"github.com/openpdv/pdvhost/internal/repository"
	"github.com/openpdv/pdvhost/internal/server"
	"github.com/openpdv/pdvhost/internal/service"
	"github.com/openpdv/pdvhost/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("invalid timezone", "error", err)
		os.Exit(1)
	}

	tracing, err := telemetry.NewTracerProvider(ctx,
		telemetry.WithEnabled(cfg.TracingEnabled),
		telemetry.WithServiceName(cfg.ServiceName),
		telemetry.WithServiceVersion(version),
		telemetry.WithEndpoint(cfg.OTLPEndpoint),
		telemetry.WithInsecure(cfg.OTLPInsecure),
		telemetry.WithSampling(cfg.TracingSampling),
		telemetry.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.Options{
		MaxConns:       cfg.DBMaxConns,
		MinConns:       cfg.DBMinConns,
		ConnectRetries: cfg.DBConnectRetries,
		Logger:         logger,
		Tracer:         tracing.Tracer(repository.TracerName),
	})
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	var (
		recorder       metrics.Recorder = metrics.NewNoop()
		metricsHandler http.Handler
	)
	if cfg.MetricsEnabled {
		prom := metrics.NewPrometheus()
		recorder, metricsHandler = prom, prom.Handler()
	}

	syncService := service.NewSyncService(service.Sources{
		Companies:    repo.Companies(),
		Devices:      repo.Devices(),
		Users:        repo.Users(),
		PaymentTypes: repo.PaymentTypes(),
		Packagings:   repo.Packagings(),
		Products:     repo.Products(),
		FiscalNotes:  repo.FiscalNotes(),
		Seed:         repo.SeedSource(model.SequenceSeedKey, cfg.FiscalSequenceSeed),
	}, dateparse.New(loc), logger)

	syncHandler := handler.NewSyncHandler(syncService, logger, recorder)

	var worker *audit.Worker
	if cfg.AuditEnabled {
		syncHandler.SetAuditor(audit.NewPublisher(cacheClient.Client(), logger, recorder))
		worker = audit.NewWorker(cacheClient.Client(), repo, logger, audit.NewConsumerID(), recorder)
		worker.SetBatchSize(cfg.AuditBatchSize)
	}

	r := server.NewRouter(server.RouterConfig{
		Logger:           logger,
		Version:          version,
		Gate:             auth.NewGate(repo, logger),
		Limiter:          cacheClient,
		Metrics:          recorder,
		MetricsHandler:   metricsHandler,
		Sync:             syncHandler,
		Health:           handler.NewHealthHandler(repo, cacheClient),
		IsDevelopment:    cfg.IsDevelopment(),
		MinAuthDuration:  cfg.AuthMinDuration,
		RateLimitEnabled: cfg.RateLimitEnabled,
		AccountRPM:       cfg.RateLimitRPM,
		AccountBurst:     cfg.RateLimitBurst,
		IPRPM:            cfg.RateLimitIPRPM,
		IPBurst:          cfg.RateLimitIPBurst,
	})

	srv := server.New(r, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)
	// Registered first so pending spans are flushed after every other hook.
	srv.OnShutdown("tracing", tracing.Shutdown)
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	srv.OnShutdown("redis", func(context.Context) error {
		return cacheClient.Close()
	})
	if worker != nil {
		// Hooks run in reverse, so the worker drains before its stores close.
		srv.OnShutdown("audit worker", worker.Shutdown)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("audit worker stopped", "error", err)
			}
		}()
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"version", version,
		"timezone", loc.String(),
		"audit", cfg.AuditEnabled,
		"tracing", tracing.Enabled(),
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "pdvhost")
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
