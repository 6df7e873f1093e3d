package user

import (
	"errors"
	"strings"
)

// Role is a crew or staff role.
type Role string

const (
	RoleDriver     Role = "DRIVER"
	RoleSupervisor Role = "SUPERVISOR"
	RoleAdmin      Role = "ADMIN"
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes (uppercases+trims) and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleDriver, RoleSupervisor, RoleAdmin:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

// Convenience helpers.
func (role Role) IsDriver() bool     { return role == RoleDriver }
func (role Role) IsSupervisor() bool { return role == RoleSupervisor }
func (role Role) IsAdmin() bool      { return role == RoleAdmin }
