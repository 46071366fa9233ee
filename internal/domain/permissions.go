package domain

import "strings"

// Role is the sole determinant of what an account may do.
type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleManager || r == RoleAdmin
}

// ParseRole normalises raw input. ok is false for unknown roles.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	return role, role.Valid()
}

// Permission is the fixed capability set derived from a role.
type Permission struct {
	CanViewPartners    bool `json:"canViewPartners"`
	CanCreatePartners  bool `json:"canCreatePartners"`
	CanEditPartners    bool `json:"canEditPartners"`
	CanDeletePartners  bool `json:"canDeletePartners"`
	CanEvaluate        bool `json:"canEvaluate"`
	CanViewEvaluations bool `json:"canViewEvaluations"`
	CanManageUsers     bool `json:"canManageUsers"`
	CanViewAdmin       bool `json:"canViewAdmin"`
	CanExportData      bool `json:"canExportData"`
	CanBackupData      bool `json:"canBackupData"`
}

var permissionTable = map[Role]Permission{
	RoleUser: {
		CanViewPartners: true,
	},
	RoleManager: {
		CanViewPartners:    true,
		CanCreatePartners:  true,
		CanEditPartners:    true,
		CanEvaluate:        true,
		CanViewEvaluations: true,
		CanExportData:      true,
	},
	RoleAdmin: {
		CanViewPartners:    true,
		CanCreatePartners:  true,
		CanEditPartners:    true,
		CanDeletePartners:  true,
		CanEvaluate:        true,
		CanViewEvaluations: true,
		CanManageUsers:     true,
		CanViewAdmin:       true,
		CanExportData:      true,
		CanBackupData:      true,
	},
}

// PermissionsFor returns the capability set for a role. Unknown or empty roles get the user set.
func PermissionsFor(role Role) Permission {
	if perms, ok := permissionTable[role]; ok {
		return perms
	}
	return permissionTable[RoleUser]
}
