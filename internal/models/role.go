package models

// Role identifies what kind of participant an identity is.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a wire string to a Role. Unknown strings degrade to
// RoleUser so a stale client can never claim admin by accident.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleGuest:
		return RoleGuest
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// IsStaff reports whether the role belongs to the support team.
func (r Role) IsStaff() bool {
	return r == RoleAdmin
}
