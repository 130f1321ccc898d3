package auth

import "strings"

// Role is the panel permission level carried in the token.
type Role string

// Panel roles, lowest first. Each role may do everything the previous one can.
const (
	// RoleViewer reads the finca catalog, the probe and the live result stream.
	RoleViewer Role = "viewer"
	// RoleOperator also dispatches commands to fincas.
	RoleOperator Role = "operator"
	// RoleAdmin also lists and exports the audit trail.
	RoleAdmin Role = "admin"
)

var panelRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// Roles lists the panel roles, lowest first.
func Roles() []Role {
	return append([]Role(nil), panelRoles...)
}

// NormalizeRole accepts a role name in any case with surrounding spaces.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if roleRank(role) == 0 {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role grants everything required grants.
// Unknown roles grant nothing.
func RoleAtLeast(role Role, required Role) bool {
	rank := roleRank(role)
	return rank > 0 && rank >= roleRank(required)
}

func roleRank(role Role) int {
	for i, known := range panelRoles {
		if role == known {
			return i + 1
		}
	}
	return 0
}
