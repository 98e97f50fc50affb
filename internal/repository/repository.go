// Package repository provides the PostgreSQL implementation of the sync
// query boundary and the account registry.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DBTX is the subset of pgxpool.Pool used by the repository.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Options tune the connection pool and startup.
type Options struct {
	MaxConns int32
	MinConns int32
	// ConnectRetries is the number of extra ping attempts at startup.
	ConnectRetries uint64
	Logger         *slog.Logger
	Tracer         trace.Tracer
}

// Repository provides database access methods.
type Repository struct {
	pool   *pgxpool.Pool
	db     DBTX
	tracer trace.Tracer
}

// New creates a Repository with a connection pool. The host usually starts
// together with its database, so the first ping is retried with
// exponential backoff.
func New(ctx context.Context, databaseURL string, opts Options) (*Repository, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(b, opts.ConnectRetries), ctx)

	ping := func() error {
		return pool.Ping(ctx)
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("database not ready, retrying",
			"error", err,
			"retry_in", next.String(),
		)
	}
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := NewWithDB(pool, opts.Tracer)
	r.pool = pool
	return r, nil
}

// NewWithDB wraps an existing connection or transaction.
func NewWithDB(db DBTX, tracer trace.Tracer) *Repository {
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	return &Repository{db: db, tracer: tracer}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if r.pool == nil {
		return nil
	}
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// Pool returns the underlying connection pool, nil when built from NewWithDB.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}
