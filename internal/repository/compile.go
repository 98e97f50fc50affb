package repository

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/openpdv/pdvhost/internal/filter"
	"github.com/openpdv/pdvhost/internal/query"
)

// sqlOperators maps filter operators to SQL.
var sqlOperators = map[filter.Operator]string{
	filter.Equal:   "=",
	filter.Greater: ">",
	filter.Less:    "<",
}

// compiler accumulates positional parameters while rendering SQL.
// Values are never interpolated.
type compiler struct {
	table  *Table
	params []any
}

func (c *compiler) bind(v any) string {
	c.params = append(c.params, v)
	return "$" + strconv.Itoa(len(c.params))
}

// compileSelect renders a Selection. Every statement is ordered and the
// primary key is appended as a tiebreaker so pages never overlap.
func compileSelect(t *Table, sel query.Selection) (string, []any, error) {
	if err := sel.Validate(); err != nil {
		return "", nil, err
	}
	if sel.Entity != t.Entity {
		return "", nil, fmt.Errorf("selection of %s against table %s", sel.Entity, t.Name)
	}

	c := &compiler{table: t}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(quoteColumns(t.Columns))
	b.WriteString(" FROM ")
	b.WriteString(pq.QuoteIdentifier(t.Name))

	if sel.Where != nil {
		where, err := c.predicate(sel.Where)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	order, err := c.orderBy(sel.Order)
	if err != nil {
		return "", nil, err
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(order)

	if sel.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(c.bind(sel.Limit))
	}
	if sel.Offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(c.bind(sel.Offset))
	}

	return b.String(), c.params, nil
}

// compileMax renders SELECT MAX(field).
func compileMax(t *Table, f filter.FieldRef) (string, error) {
	if f.Domain() != filter.DomainInt {
		return "", fmt.Errorf("max over %s field %s", f.Domain(), f)
	}
	col, err := t.column(f)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT MAX(%s) FROM %s", pq.QuoteIdentifier(col), pq.QuoteIdentifier(t.Name)), nil
}

func (c *compiler) orderBy(order filter.FieldRef) (string, error) {
	key := pq.QuoteIdentifier(c.table.Key)
	if order.IsZero() || order.Name() == c.table.Key {
		return key + " ASC", nil
	}
	col, err := c.table.column(order)
	if err != nil {
		return "", err
	}
	return pq.QuoteIdentifier(col) + " ASC, " + key + " ASC", nil
}

func (c *compiler) predicate(n filter.Node) (string, error) {
	switch node := n.(type) {
	case filter.Comparison:
		return c.comparison(node)
	case filter.Junction:
		return c.junction(node)
	default:
		return "", fmt.Errorf("unsupported filter node %T", n)
	}
}

func (c *compiler) comparison(cmp filter.Comparison) (string, error) {
	col, err := c.table.column(cmp.Field())
	if err != nil {
		return "", err
	}
	op, ok := sqlOperators[cmp.Operator()]
	if !ok {
		return "", fmt.Errorf("unsupported operator %s", cmp.Operator())
	}
	return pq.QuoteIdentifier(col) + " " + op + " " + c.bind(cmp.Value()), nil
}

func (c *compiler) junction(j filter.Junction) (string, error) {
	children := j.Children()
	if len(children) == 0 {
		return "", filter.ErrEmptyJunction
	}
	parts := make([]string, 0, len(children))
	for _, child := range children {
		sql, err := c.predicate(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " "+j.Operator().String()+" ") + ")", nil
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = pq.QuoteIdentifier(col)
	}
	return strings.Join(quoted, ", ")
}
