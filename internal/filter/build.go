package filter

import (
	"fmt"
	"time"
)

// Compare builds a comparison leaf. The value type is checked by the compiler
// against the field declaration.
// Panics if op is not a known operator.
func Compare[T Value](field Field[T], op Operator, value T) Comparison {
	if !op.valid() {
		panic(fmt.Sprintf("filter: invalid operator %d", op))
	}
	if field.ref.IsZero() {
		panic("filter: comparison on an undeclared field")
	}
	if t, ok := any(value).(time.Time); ok && t.IsZero() {
		panic(fmt.Sprintf("filter: zero time compared with %s", field.ref))
	}
	return Comparison{field: field.ref, op: op, value: value}
}

// Eq builds field = value.
func Eq[T Value](field Field[T], value T) Comparison {
	return Compare(field, Equal, value)
}

// Gt builds field > value.
func Gt[T Value](field Field[T], value T) Comparison {
	return Compare(field, Greater, value)
}

// Lt builds field < value.
func Lt[T Value](field Field[T], value T) Comparison {
	return Compare(field, Less, value)
}

// Join builds a junction over the given children.
//
// A junction without children has no meaningful truth value for a query, so
// building one is a programming error and panics instead of silently matching
// everything or nothing. A nil child panics for the same reason.
func Join(op JunctionOp, children ...Node) Junction {
	if !op.valid() {
		panic(fmt.Sprintf("filter: invalid junction operator %d", op))
	}
	if len(children) == 0 {
		panic("filter: junction requires at least one child")
	}
	for i, child := range children {
		if child == nil {
			panic(fmt.Sprintf("filter: junction child %d is nil", i))
		}
	}

	owned := make([]Node, len(children))
	copy(owned, children)
	return Junction{op: op, children: owned}
}

// All is Join(And, children...).
func All(children ...Node) Junction {
	return Join(And, children...)
}

// Any is Join(Or, children...).
func Any(children ...Node) Junction {
	return Join(Or, children...)
}

// Fields returns every field referenced by the tree, in depth-first order.
// A nil node has no fields.
func Fields(n Node) []FieldRef {
	var out []FieldRef
	walk(n, func(c Comparison) {
		out = append(out, c.field)
	})
	return out
}

func walk(n Node, visit func(Comparison)) {
	switch node := n.(type) {
	case nil:
	case Comparison:
		visit(node)
	case Junction:
		for _, child := range node.children {
			walk(child, visit)
		}
	}
}
