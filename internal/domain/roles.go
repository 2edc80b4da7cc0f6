package domain

import "strings"

// Role is an ordered privilege level. Comparisons go through MeetsMinimum
// so handlers never match on raw role strings.
type Role int

const (
	RoleUnknown Role = iota
	RoleStaff
	RoleManager
	RoleSuperadmin
)

func ParseRole(s string) Role {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "STAFF":
		return RoleStaff
	case "MANAGER":
		return RoleManager
	case "SUPERADMIN":
		return RoleSuperadmin
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	switch r {
	case RoleStaff:
		return "STAFF"
	case RoleManager:
		return "MANAGER"
	case RoleSuperadmin:
		return "SUPERADMIN"
	default:
		return "UNKNOWN"
	}
}

func (r Role) Valid() bool {
	return r == RoleStaff || r == RoleManager || r == RoleSuperadmin
}

// MeetsMinimum reports whether r carries at least the privilege of min.
func (r Role) MeetsMinimum(min Role) bool {
	return r.Valid() && min.Valid() && r >= min
}
