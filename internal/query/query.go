// Package query defines the boundary between the sync endpoints and the
// persistence layer that executes selections.
package query

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/openpdv/pdvhost/internal/filter"
)

// Dispatch errors.
var (
	// ErrNotFound is returned by SelectOne when no row matches.
	ErrNotFound = errors.New("no matching row")
	// ErrNotUnique is returned by SelectOne when more than one row matches.
	ErrNotUnique = errors.New("more than one matching row")
)

// ValidationError reports malformed selection or pagination input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Selection describes a multi-row read.
type Selection struct {
	Entity filter.Entity
	// Offset is the number of rows to skip.
	Offset int
	// Limit caps the number of rows returned. Zero means no limit.
	Limit int
	// Order is the ascending sort field. Implementations add the primary key
	// as a tiebreaker so pages are stable.
	Order filter.FieldRef
	// Where restricts the rows. Nil selects every row.
	Where filter.Node
}

// Validate checks bounds and that every referenced field belongs to the
// selected entity.
func (s Selection) Validate() error {
	if s.Entity == "" {
		return &ValidationError{Field: "entity", Message: "is required"}
	}
	if s.Offset < 0 {
		return &ValidationError{Field: "offset", Message: "must not be negative"}
	}
	if s.Limit < 0 {
		return &ValidationError{Field: "limit", Message: "must not be negative"}
	}
	if !s.Order.IsZero() && s.Order.Entity() != s.Entity {
		return &ValidationError{
			Field:   "order",
			Message: fmt.Sprintf("field %s does not belong to %s", s.Order, s.Entity),
		}
	}
	return CheckFields(s.Entity, s.Where)
}

// CheckFields verifies that the filter only references fields of entity.
func CheckFields(entity filter.Entity, where filter.Node) error {
	for _, f := range filter.Fields(where) {
		if f.Entity() != entity {
			return &ValidationError{
				Field:   "filter",
				Message: fmt.Sprintf("field %s does not belong to %s", f, entity),
			}
		}
	}
	return nil
}

// MaxPageSize is the largest page a caller may request. A zero limit still
// selects every row.
const MaxPageSize = 5000

// MaxOffset bounds page*limit so the offset fits the driver's int4 binding.
const MaxOffset = math.MaxInt32

// Paginate converts a zero-based page index and a page size to an offset.
// A zero limit selects every row, in which case the offset is zero as well.
// Callers validate the inputs first.
func Paginate(page, limit int) int {
	if limit == 0 {
		return 0
	}
	return page * limit
}

// Source selects rows of a single entity.
type Source[T any] interface {
	// Select returns the rows described by sel, in order.
	Select(ctx context.Context, sel Selection) ([]T, error)
	// SelectOne returns the only row matching where.
	SelectOne(ctx context.Context, where filter.Node) (T, error)
}

// Aggregator computes aggregates over a single field.
type Aggregator interface {
	// Max returns the greatest value of an integer field, or nil when the
	// entity has no rows.
	Max(ctx context.Context, field filter.FieldRef) (*int64, error)
}
