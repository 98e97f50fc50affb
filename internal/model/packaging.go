package model

import "github.com/openpdv/pdvhost/internal/filter"

// EntityPackaging is the entity kind of Packaging records.
const EntityPackaging filter.Entity = "packaging"

// Packaging fields usable in filters.
var (
	PackagingID     = filter.NewField[int64](EntityPackaging, "id")
	PackagingActive = filter.NewField[bool](EntityPackaging, "active")
)

// Packaging is a sale unit (UN, KG, CX...) products refer to.
type Packaging struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	Active      bool   `json:"active" db:"active"`
}

// Lookup implements filter.Record.
func (p Packaging) Lookup(f filter.FieldRef) (any, bool) {
	switch f {
	case PackagingID.Ref():
		return p.ID, true
	case PackagingActive.Ref():
		return p.Active, true
	}
	return nil, false
}
