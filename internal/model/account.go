// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// Role constants for sync account authorization.
const (
	// RoleTerminal is granted to point-of-sale terminals that pull data.
	RoleTerminal = "terminal"
	// RoleBackoffice identifies staff accounts that are not allowed to sync.
	RoleBackoffice = "backoffice"
	// RoleAdmin satisfies every role check.
	RoleAdmin = "admin"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleTerminal, RoleBackoffice, RoleAdmin}

// IsValidRole reports whether role is a known role.
func IsValidRole(role string) bool {
	return slices.Contains(ValidRoles, role)
}

// Account is a registered sync credential.
type Account struct {
	ID           string     `json:"id" db:"id"`
	Identifier   string     `json:"identifier" db:"identifier"`
	SecretHash   string     `json:"-" db:"secret_hash"` // Never serialize
	Role         string     `json:"role" db:"role"`
	DeviceSerial *string    `json:"device_serial,omitempty" db:"device_serial"`
	Name         string     `json:"name,omitempty" db:"name"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
}

// IsRevoked returns true if the account has been revoked.
func (a *Account) IsRevoked() bool {
	return a.RevokedAt != nil
}

// HasRole checks if the account may act in the given role.
// Admin implies every role.
func (a *Account) HasRole(role string) bool {
	return a.Role == RoleAdmin || a.Role == role
}

// Principal is the authenticated caller of a request.
// It is injected into the request context by the authorization middleware.
type Principal struct {
	AccountID    string
	Identifier   string
	Role         string
	DeviceSerial string
}

// HasDevice reports whether the principal is bound to a fiscal printer.
func (p *Principal) HasDevice() bool {
	return p.DeviceSerial != ""
}

// Credential is the identifier/secret pair presented by a caller.
type Credential struct {
	Identifier string
	Secret     string
}

// IsEmpty reports whether either part of the credential is missing.
func (c Credential) IsEmpty() bool {
	return c.Identifier == "" || c.Secret == ""
}
