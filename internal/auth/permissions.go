package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermInstrumentRead Permission = "instrument:read"
	PermWorklistParse  Permission = "worklist:parse"
	PermRunRead        Permission = "run:read"
	PermRunExecute     Permission = "run:execute"
	PermFaultInject    Permission = "fault:inject"
	PermUserManage     Permission = "user:manage"
	PermSystemAdmin    Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermInstrumentRead,
		PermRunRead,
	},
	RoleOperator: {
		PermInstrumentRead,
		PermWorklistParse,
		PermRunRead,
		PermRunExecute,
	},
	RoleAdmin: {
		PermInstrumentRead,
		PermWorklistParse,
		PermRunRead,
		PermRunExecute,
		PermFaultInject,
		PermUserManage,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
