// Package filter provides the predicate tree used to select synchronized entities.
//
// A tree is built from Comparison leaves and Junction nodes. Trees are immutable
// once built and carry typed field references, so a comparison can only be built
// with a value of the field's declared domain.
package filter

import (
	"fmt"
	"strings"
	"time"
)

// Entity identifies the kind of record a field belongs to.
type Entity string

// Domain is the value domain declared by a field.
type Domain int

// Field domains.
const (
	DomainBool Domain = iota + 1
	DomainInt
	DomainString
	DomainTime
)

// String returns the domain name.
func (d Domain) String() string {
	switch d {
	case DomainBool:
		return "bool"
	case DomainInt:
		return "int"
	case DomainString:
		return "string"
	case DomainTime:
		return "time"
	default:
		return "unknown"
	}
}

// Value is the set of Go types a field can be declared with.
type Value interface {
	bool | int64 | string | time.Time
}

// FieldRef is an untyped reference to a field of an entity.
// It is comparable and safe to use as a map key.
type FieldRef struct {
	entity Entity
	name   string
	domain Domain
}

// Entity returns the entity the field belongs to.
func (f FieldRef) Entity() Entity { return f.entity }

// Name returns the logical field name.
func (f FieldRef) Name() string { return f.name }

// Domain returns the declared value domain.
func (f FieldRef) Domain() Domain { return f.domain }

// IsZero reports whether the reference was never initialized.
func (f FieldRef) IsZero() bool { return f.entity == "" && f.name == "" }

func (f FieldRef) String() string {
	return string(f.entity) + "." + f.name
}

// Field is a typed reference to a field whose values are of type T.
type Field[T Value] struct {
	ref FieldRef
}

// NewField declares a field of an entity. The domain is derived from T.
func NewField[T Value](entity Entity, name string) Field[T] {
	if entity == "" || name == "" {
		panic("filter: field requires an entity and a name")
	}
	return Field[T]{ref: FieldRef{entity: entity, name: name, domain: domainOf[T]()}}
}

// Ref returns the untyped reference.
func (f Field[T]) Ref() FieldRef { return f.ref }

func (f Field[T]) String() string { return f.ref.String() }

func domainOf[T Value]() Domain {
	var zero T
	switch any(zero).(type) {
	case bool:
		return DomainBool
	case int64:
		return DomainInt
	case string:
		return DomainString
	case time.Time:
		return DomainTime
	}
	panic(fmt.Sprintf("filter: unsupported field type %T", zero))
}

// Operator is a comparison operator.
type Operator int

// Comparison operators.
const (
	Equal Operator = iota + 1
	Greater
	Less
)

func (o Operator) String() string {
	switch o {
	case Equal:
		return "="
	case Greater:
		return ">"
	case Less:
		return "<"
	default:
		return "?"
	}
}

func (o Operator) valid() bool {
	return o == Equal || o == Greater || o == Less
}

// JunctionOp is a boolean combinator.
type JunctionOp int

// Junction operators.
const (
	And JunctionOp = iota + 1
	Or
)

func (o JunctionOp) String() string {
	switch o {
	case And:
		return "AND"
	case Or:
		return "OR"
	default:
		return "?"
	}
}

func (o JunctionOp) valid() bool {
	return o == And || o == Or
}

// Node is a predicate in a filter tree.
//
// The interface is sealed: only Comparison and Junction implement it, so
// consumers can switch over the concrete types exhaustively.
type Node interface {
	fmt.Stringer
	filterNode()
}

// Comparison compares a field against a constant value.
type Comparison struct {
	field FieldRef
	op    Operator
	value any
}

func (Comparison) filterNode() {}

// Field returns the compared field.
func (c Comparison) Field() FieldRef { return c.field }

// Operator returns the comparison operator.
func (c Comparison) Operator() Operator { return c.op }

// Value returns the constant operand. Its dynamic type matches the field domain.
func (c Comparison) Value() any { return c.value }

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.field.name, c.op, formatValue(c.value))
}

// Junction combines child predicates with AND or OR.
type Junction struct {
	op       JunctionOp
	children []Node
}

func (Junction) filterNode() {}

// Operator returns the junction operator.
func (j Junction) Operator() JunctionOp { return j.op }

// Children returns a copy of the child predicates in order.
func (j Junction) Children() []Node {
	out := make([]Node, len(j.children))
	copy(out, j.children)
	return out
}

// Len returns the number of children.
func (j Junction) Len() int { return len(j.children) }

func (j Junction) String() string {
	parts := make([]string, len(j.children))
	for i, child := range j.children {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, " "+j.op.String()+" ") + ")"
}

func formatValue(v any) string {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprint(val)
	}
}
