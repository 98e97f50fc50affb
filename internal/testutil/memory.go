package testutil

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openpdv/pdvhost/internal/filter"
	"github.com/openpdv/pdvhost/internal/query"
)

// MemorySource is an in-memory query.Source and query.Aggregator that
// evaluates filters with filter.Match and records every call.
type MemorySource[T filter.Record] struct {
	entity filter.Entity
	key    filter.FieldRef

	mu         sync.Mutex
	rows       []T
	selections []query.Selection
	lookups    []filter.Node
	err        error

	calls atomic.Int64
}

// NewMemorySource creates a source over rows. key is the primary key used
// as ordering tiebreaker.
func NewMemorySource[T filter.Record](entity filter.Entity, key filter.FieldRef, rows ...T) *MemorySource[T] {
	return &MemorySource[T]{entity: entity, key: key, rows: slices.Clone(rows)}
}

// FailWith makes every later call return err.
func (m *MemorySource[T]) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of calls made to the source.
func (m *MemorySource[T]) Calls() int {
	return int(m.calls.Load())
}

// Selections returns the selections received by Select.
func (m *MemorySource[T]) Selections() []query.Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.selections)
}

// Lookups returns the filters received by SelectOne.
func (m *MemorySource[T]) Lookups() []filter.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.lookups)
}

// Select implements query.Source.
func (m *MemorySource[T]) Select(_ context.Context, sel query.Selection) ([]T, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selections = append(m.selections, sel)

	if m.err != nil {
		return nil, m.err
	}
	if err := sel.Validate(); err != nil {
		return nil, err
	}

	matched, err := m.match(sel.Where)
	if err != nil {
		return nil, err
	}

	order := sel.Order
	if order.IsZero() {
		order = m.key
	}
	slices.SortStableFunc(matched, func(a, b T) int {
		if c := compareField(a, b, order); c != 0 {
			return c
		}
		return compareField(a, b, m.key)
	})

	if sel.Offset >= len(matched) {
		return []T{}, nil
	}
	matched = matched[sel.Offset:]
	if sel.Limit > 0 && sel.Limit < len(matched) {
		matched = matched[:sel.Limit]
	}
	return matched, nil
}

// SelectOne implements query.Source.
func (m *MemorySource[T]) SelectOne(_ context.Context, where filter.Node) (T, error) {
	var zero T
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups = append(m.lookups, where)

	if m.err != nil {
		return zero, m.err
	}
	if err := query.CheckFields(m.entity, where); err != nil {
		return zero, err
	}

	matched, err := m.match(where)
	if err != nil {
		return zero, err
	}
	switch len(matched) {
	case 0:
		return zero, query.ErrNotFound
	case 1:
		return matched[0], nil
	default:
		return zero, query.ErrNotUnique
	}
}

// Max implements query.Aggregator.
func (m *MemorySource[T]) Max(_ context.Context, field filter.FieldRef) (*int64, error) {
	m.calls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	var best *int64
	for _, row := range m.rows {
		v, ok := row.Lookup(field)
		if !ok {
			return nil, filter.ErrMissingField
		}
		n, ok := v.(int64)
		if !ok {
			return nil, filter.ErrDomainMismatch
		}
		if best == nil || n > *best {
			best = &n
		}
	}
	return best, nil
}

func (m *MemorySource[T]) match(where filter.Node) ([]T, error) {
	out := make([]T, 0, len(m.rows))
	for _, row := range m.rows {
		ok, err := filter.Match(where, row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func compareField[T filter.Record](a, b T, f filter.FieldRef) int {
	va, _ := a.Lookup(f)
	vb, _ := b.Lookup(f)
	switch x := va.(type) {
	case int64:
		y, _ := vb.(int64)
		return cmp.Compare(x, y)
	case string:
		y, _ := vb.(string)
		return cmp.Compare(x, y)
	case time.Time:
		y, _ := vb.(time.Time)
		return x.Compare(y)
	case bool:
		y, _ := vb.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	}
	return 0
}

// StaticSeed is a fixed sequence seed that counts reads.
type StaticSeed struct {
	Value int64
	Err   error
	reads atomic.Int64
}

// SequenceSeed returns the configured seed.
func (s *StaticSeed) SequenceSeed(context.Context) (int64, error) {
	s.reads.Add(1)
	return s.Value, s.Err
}

// Reads returns how often the seed was read.
func (s *StaticSeed) Reads() int {
	return int(s.reads.Load())
}
