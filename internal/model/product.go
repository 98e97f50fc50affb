package model

import (
	"time"

	"github.com/openpdv/pdvhost/internal/filter"
)

// EntityProduct is the entity kind of Product records.
const EntityProduct filter.Entity = "product"

// Product fields usable in filters.
var (
	ProductID        = filter.NewField[int64](EntityProduct, "id")
	ProductBarcode   = filter.NewField[string](EntityProduct, "barcode")
	ProductActive    = filter.NewField[bool](EntityProduct, "active")
	ProductCreatedAt = filter.NewField[time.Time](EntityProduct, "created_at")
	ProductUpdatedAt = filter.NewField[time.Time](EntityProduct, "updated_at")
)

// ProductDelta splits the catalog into new and updated products.
var ProductDelta = filter.Delta{
	CreatedAt: ProductCreatedAt,
	UpdatedAt: ProductUpdatedAt,
}

// Product is a catalog item sold at the terminals.
type Product struct {
	ID          int64     `json:"id" db:"id"`
	Barcode     string    `json:"barcode" db:"barcode"`
	Description string    `json:"description" db:"description"`
	Reference   string    `json:"reference" db:"reference"`
	PackagingID int64     `json:"packaging_id" db:"packaging_id"`
	Price       float64   `json:"price" db:"price"`
	Cost        float64   `json:"cost" db:"cost"`
	Stock       float64   `json:"stock" db:"stock"`
	NCM         string    `json:"ncm" db:"ncm"`
	TaxCode     string    `json:"tax_code" db:"tax_code"`
	TaxRate     float64   `json:"tax_rate" db:"tax_rate"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Lookup implements filter.Record.
func (p Product) Lookup(f filter.FieldRef) (any, bool) {
	switch f {
	case ProductID.Ref():
		return p.ID, true
	case ProductBarcode.Ref():
		return p.Barcode, true
	case ProductActive.Ref():
		return p.Active, true
	case ProductCreatedAt.Ref():
		return p.CreatedAt, true
	case ProductUpdatedAt.Ref():
		return p.UpdatedAt, true
	}
	return nil, false
}
