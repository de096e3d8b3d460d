package auth

import "strings"

// Role is a named, hierarchical actor category. The set of role names is
// closed; display metadata and module access for a role live in the role
// configuration service, not here.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleTeacher    Role = "teacher"
	RoleStudent    Role = "student"
	RoleParent     Role = "parent"
	RoleStaff      Role = "staff"
	RoleGuest      Role = "guest"
)

// roleLevels orders roles for coarse comparisons. Higher manages lower only
// through the configured hierarchy; the level is informational.
var roleLevels = map[Role]int{
	RoleSuperAdmin: 100,
	RoleAdmin:      80,
	RoleTeacher:    60,
	RoleStaff:      50,
	RoleParent:     40,
	RoleStudent:    20,
	RoleGuest:      0,
}

// AllRoles lists every valid role name.
func AllRoles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleTeacher, RoleStudent, RoleParent, RoleStaff, RoleGuest}
}

// ParseRole normalizes a role name. Unknown names yield RoleGuest and false.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if _, ok := roleLevels[r]; ok {
		return r, true
	}
	return RoleGuest, false
}

// IsValid reports whether the role belongs to the closed catalog.
func (r Role) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}

// Level returns the numeric hierarchy level for the role.
func (r Role) Level() int {
	return roleLevels[r]
}

// IsAdminTier reports whether the role carries administrative privileges.
func (r Role) IsAdminTier() bool {
	return r == RoleSuperAdmin || r == RoleAdmin
}

func (r Role) String() string { return string(r) }
