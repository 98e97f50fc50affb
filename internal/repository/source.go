package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/trace"

	"github.com/openpdv/pdvhost/internal/filter"
	"github.com/openpdv/pdvhost/internal/query"
)

// Source executes selections of one entity kind. It implements
// query.Source[T] and query.Aggregator.
type Source[T any] struct {
	db     DBTX
	table  *Table
	tracer trace.Tracer
}

// NewSource creates a Source reading rows of table into T.
func NewSource[T any](db DBTX, table *Table, tracer trace.Tracer) *Source[T] {
	return &Source[T]{db: db, table: table, tracer: tracer}
}

// Select returns the rows described by sel.
func (s *Source[T]) Select(ctx context.Context, sel query.Selection) ([]T, error) {
	ctx, span := startSpan(ctx, s.tracer, "Select."+string(s.table.Entity),
		AttrEntity.String(string(s.table.Entity)),
		AttrOffset.Int(sel.Offset),
		AttrLimit.Int(sel.Limit),
		AttrFilter.String(describe(sel.Where)),
	)
	defer span.End()

	sql, args, err := compileSelect(s.table, sel)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	items, err := s.collect(ctx, sql, args)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("select %s: %w", s.table.Name, err)
	}

	span.SetAttributes(AttrResultCount.Int(len(items)))
	return items, nil
}

// SelectOne returns the only row matching where. It fetches at most two
// rows to tell a unique match from an ambiguous one.
func (s *Source[T]) SelectOne(ctx context.Context, where filter.Node) (T, error) {
	var zero T

	ctx, span := startSpan(ctx, s.tracer, "SelectOne."+string(s.table.Entity),
		AttrEntity.String(string(s.table.Entity)),
		AttrFilter.String(describe(where)),
	)
	defer span.End()

	sql, args, err := compileSelect(s.table, query.Selection{
		Entity: s.table.Entity,
		Limit:  2,
		Where:  where,
	})
	if err != nil {
		recordError(span, err)
		return zero, err
	}

	items, err := s.collect(ctx, sql, args)
	if err != nil {
		recordError(span, err)
		return zero, fmt.Errorf("select one %s: %w", s.table.Name, err)
	}

	span.SetAttributes(AttrResultCount.Int(len(items)))
	switch len(items) {
	case 0:
		return zero, query.ErrNotFound
	case 1:
		return items[0], nil
	default:
		return zero, query.ErrNotUnique
	}
}

// Max returns MAX(field) or nil for an empty table.
func (s *Source[T]) Max(ctx context.Context, field filter.FieldRef) (*int64, error) {
	ctx, span := startSpan(ctx, s.tracer, "Max."+string(s.table.Entity),
		AttrEntity.String(string(s.table.Entity)),
	)
	defer span.End()

	sql, err := compileMax(s.table, field)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	var result *int64
	if err := s.db.QueryRow(ctx, sql).Scan(&result); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("max %s: %w", field, err)
	}
	return result, nil
}

func (s *Source[T]) collect(ctx context.Context, sql string, args []any) ([]T, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func describe(n filter.Node) string {
	if n == nil {
		return ""
	}
	return n.String()
}
