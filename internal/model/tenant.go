// internal/model/tenant.go
package model

import "time"

// Tenant is one financial product line, e.g. credit_card or loan.
type Tenant struct {
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedBy   string    `db:"created_by_username" json:"created_by_username,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCreate   Role = "create"
	RoleApprover Role = "approver"
	RoleReadOnly Role = "read_only"
)

// RoleSet is the set of roles a user holds in one tenant.
type RoleSet map[Role]bool

// HasAny reports whether the set contains at least one of roles.
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if s[r] {
			return true
		}
	}
	return false
}
