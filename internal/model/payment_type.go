package model

import "github.com/openpdv/pdvhost/internal/filter"

// EntityPaymentType is the entity kind of PaymentType records.
const EntityPaymentType filter.Entity = "payment_type"

// PaymentType fields usable in filters.
var (
	PaymentTypeID     = filter.NewField[int64](EntityPaymentType, "id")
	PaymentTypeActive = filter.NewField[bool](EntityPaymentType, "active")
)

// PaymentType is a tender accepted at the register.
type PaymentType struct {
	ID          int64  `json:"id" db:"id"`
	Code        string `json:"code" db:"code"`
	Description string `json:"description" db:"description"`
	TEF         bool   `json:"tef" db:"tef"`
	Linked      bool   `json:"linked" db:"linked"`
	Debit       bool   `json:"debit" db:"debit"`
	Active      bool   `json:"active" db:"active"`
}

// Lookup implements filter.Record.
func (p PaymentType) Lookup(f filter.FieldRef) (any, bool) {
	switch f {
	case PaymentTypeID.Ref():
		return p.ID, true
	case PaymentTypeActive.Ref():
		return p.Active, true
	}
	return nil, false
}
