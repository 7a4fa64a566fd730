package enums

import (
	"fmt"
	"strings"
)

// UserRole is the account-level role used for authorization.
type UserRole string

const (
	UserRoleUser   UserRole = "user"
	UserRoleSeller UserRole = "seller"
	UserRoleAdmin  UserRole = "admin"
)

var validUserRoles = []UserRole{
	UserRoleUser,
	UserRoleSeller,
	UserRoleAdmin,
}

func (r UserRole) String() string {
	return string(r)
}

// IsValid checks whether the role matches the canonical enum.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanSell reports whether the role may manage catalog entries.
func (r UserRole) CanSell() bool {
	return r == UserRoleSeller || r == UserRoleAdmin
}

// ParseUserRole converts raw strings into UserRole.
func ParseUserRole(value string) (UserRole, error) {
	normalized := UserRole(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
