package model

import "github.com/openpdv/pdvhost/internal/filter"

// EntityUser is the entity kind of User records.
const EntityUser filter.Entity = "user"

// User fields usable in filters.
var (
	UserID     = filter.NewField[int64](EntityUser, "id")
	UserLogin  = filter.NewField[string](EntityUser, "login")
	UserActive = filter.NewField[bool](EntityUser, "active")
)

// User is an operator allowed to sign in at a terminal.
// The password hash is shipped so terminals can authenticate offline.
type User struct {
	ID           int64   `json:"id" db:"id"`
	Login        string  `json:"login" db:"login"`
	Name         string  `json:"name" db:"name"`
	PasswordHash string  `json:"password_hash" db:"password_hash"`
	MaxDiscount  float64 `json:"max_discount" db:"max_discount"`
	Manager      bool    `json:"manager" db:"manager"`
	Active       bool    `json:"active" db:"active"`
}

// Lookup implements filter.Record.
func (u User) Lookup(f filter.FieldRef) (any, bool) {
	switch f {
	case UserID.Ref():
		return u.ID, true
	case UserLogin.Ref():
		return u.Login, true
	case UserActive.Ref():
		return u.Active, true
	}
	return nil, false
}
