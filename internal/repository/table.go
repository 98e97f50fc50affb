package repository

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/openpdv/pdvhost/internal/filter"
)

// Table maps an entity kind to its PostgreSQL table.
type Table struct {
	Name    string
	Entity  filter.Entity
	Key     string
	Columns []string
}

// newTable derives the column list from the db tags of T, so selected
// columns always line up with pgx.RowToStructByName.
func newTable[T any](name string, entity filter.Entity) *Table {
	t := reflect.TypeFor[T]()
	cols := make([]string, 0, t.NumField())
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, tag)
	}
	return &Table{Name: name, Entity: entity, Key: "id", Columns: cols}
}

// column resolves a field reference to a column of this table.
func (t *Table) column(f filter.FieldRef) (string, error) {
	if f.Entity() != t.Entity {
		return "", fmt.Errorf("field %s does not belong to %s", f, t.Entity)
	}
	if !slices.Contains(t.Columns, f.Name()) {
		return "", fmt.Errorf("table %s has no column for field %s", t.Name, f)
	}
	return f.Name(), nil
}
