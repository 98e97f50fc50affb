package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Evaluation errors.
var (
	ErrMissingField   = errors.New("record has no such field")
	ErrDomainMismatch = errors.New("record value does not match field domain")
	ErrEmptyJunction  = errors.New("junction has no children")
)

// Record exposes field values of a single entity for in-process evaluation.
type Record interface {
	// Lookup returns the value stored for the field, or false when the
	// record does not carry it.
	Lookup(field FieldRef) (any, bool)
}

// RecordFunc adapts a function to the Record interface.
type RecordFunc func(field FieldRef) (any, bool)

// Lookup calls f.
func (f RecordFunc) Lookup(field FieldRef) (any, bool) { return f(field) }

// Match evaluates the tree against a record. A nil node matches every record.
func Match(n Node, r Record) (bool, error) {
	switch node := n.(type) {
	case nil:
		return true, nil
	case Comparison:
		return matchComparison(node, r)
	case Junction:
		return matchJunction(node, r)
	default:
		return false, fmt.Errorf("unsupported node type %T", n)
	}
}

func matchJunction(j Junction, r Record) (bool, error) {
	if len(j.children) == 0 {
		return false, ErrEmptyJunction
	}

	for _, child := range j.children {
		ok, err := Match(child, r)
		if err != nil {
			return false, err
		}
		if j.op == And && !ok {
			return false, nil
		}
		if j.op == Or && ok {
			return true, nil
		}
	}

	return j.op == And, nil
}

func matchComparison(c Comparison, r Record) (bool, error) {
	got, ok := r.Lookup(c.field)
	if !ok {
		return false, fmt.Errorf("%s: %w", c.field, ErrMissingField)
	}

	cmp, err := compareValues(got, c.value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", c.field, err)
	}

	switch c.op {
	case Equal:
		return cmp == 0, nil
	case Greater:
		return cmp > 0, nil
	case Less:
		return cmp < 0, nil
	default:
		return false, fmt.Errorf("invalid operator %d", c.op)
	}
}

// compareValues orders a against b; both must share a domain.
func compareValues(a, b any) (int, error) {
	switch bv := b.(type) {
	case bool:
		av, ok := a.(bool)
		if !ok {
			return 0, ErrDomainMismatch
		}
		return compareBool(av, bv), nil
	case int64:
		av, ok := a.(int64)
		if !ok {
			return 0, ErrDomainMismatch
		}
		switch {
		case av < bv:
			return -1, nil
		case av > bv:
			return 1, nil
		}
		return 0, nil
	case string:
		av, ok := a.(string)
		if !ok {
			return 0, ErrDomainMismatch
		}
		return strings.Compare(av, bv), nil
	case time.Time:
		av, ok := a.(time.Time)
		if !ok {
			return 0, ErrDomainMismatch
		}
		return av.Compare(bv), nil
	}
	return 0, ErrDomainMismatch
}

// false sorts before true, matching SQL boolean ordering.
func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}
