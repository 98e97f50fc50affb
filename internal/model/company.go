package model

import "github.com/openpdv/pdvhost/internal/filter"

// EntityCompany is the entity kind of Company records.
const EntityCompany filter.Entity = "company"

// Company fields usable in filters.
var (
	CompanyID         = filter.NewField[int64](EntityCompany, "id")
	CompanyCNPJ       = filter.NewField[string](EntityCompany, "cnpj")
	CompanyAccountant = filter.NewField[bool](EntityCompany, "accountant")
)

// Company is the store owner or, when Accountant is set, its accounting office.
type Company struct {
	ID                    int64  `json:"id" db:"id"`
	CNPJ                  string `json:"cnpj" db:"cnpj"`
	Name                  string `json:"name" db:"name"`
	TradeName             string `json:"trade_name" db:"trade_name"`
	StateRegistration     string `json:"state_registration" db:"state_registration"`
	MunicipalRegistration string `json:"municipal_registration" db:"municipal_registration"`
	Street                string `json:"street" db:"street"`
	Number                string `json:"number" db:"number"`
	Complement            string `json:"complement" db:"complement"`
	District              string `json:"district" db:"district"`
	City                  string `json:"city" db:"city"`
	State                 string `json:"state" db:"state"`
	PostalCode            string `json:"postal_code" db:"postal_code"`
	Phone                 string `json:"phone" db:"phone"`
	Email                 string `json:"email" db:"email"`
	Accountant            bool   `json:"accountant" db:"accountant"`
}

// Lookup implements filter.Record.
func (c Company) Lookup(f filter.FieldRef) (any, bool) {
	switch f {
	case CompanyID.Ref():
		return c.ID, true
	case CompanyCNPJ.Ref():
		return c.CNPJ, true
	case CompanyAccountant.Ref():
		return c.Accountant, true
	}
	return nil, false
}
