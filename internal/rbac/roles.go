package rbac

import "calllog-dashboard/internal/auth"

// Role names. Keep these stable; they appear in logs and audit records.
const (
	RoleDeveloper = "developer"
	RoleViewer    = "viewer"
)

// RoleOf maps an identity to its role name. Developers administer agents and users.
func RoleOf(id auth.Identity) string {
	if id.Developer {
		return RoleDeveloper
	}
	return RoleViewer
}

func IsDeveloper(id auth.Identity) bool { return id.Developer }
