package auth

import (
	"fmt"
	"strings"
)

// Role is the single role carried by every user account.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleWriter Role = "writer"
	RoleUser   Role = "user"
)

// ParseRole normalizes and validates a role value.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleWriter:
		return RoleWriter, nil
	case RoleUser:
		return RoleUser, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
}

// Valid reports whether the role is one of the three known values.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleWriter || r == RoleUser
}

// Capability is the access level a protected route family demands.
type Capability int

const (
	// CapAuthenticated admits any active account.
	CapAuthenticated Capability = iota
	// CapWriter admits writers and admins.
	CapWriter
	// CapAdmin admits admins only.
	CapAdmin
)

// Satisfies reports whether the role meets the required capability.
func (r Role) Satisfies(cap Capability) bool {
	switch cap {
	case CapAuthenticated:
		return r.Valid()
	case CapWriter:
		return r == RoleWriter || r == RoleAdmin
	case CapAdmin:
		return r == RoleAdmin
	default:
		return false
	}
}

// WriterStatus tracks the writer-role application workflow.
type WriterStatus string

const (
	WriterStatusNone     WriterStatus = "none"
	WriterStatusPending  WriterStatus = "pending"
	WriterStatusApproved WriterStatus = "approved"
	WriterStatusRejected WriterStatus = "rejected"
)
