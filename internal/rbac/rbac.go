package rbac

// Role is a workspace membership role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

var (
	// Elevated roles may delete spaces and columns, edit the workspace and add members.
	Elevated = []Role{RoleOwner, RoleAdmin}
	// OwnerOnly guards workspace deletion.
	OwnerOnly = []Role{RoleOwner}
)

// Satisfies reports whether role is one of required. An empty required list
// accepts any valid membership role.
func Satisfies(role Role, required ...Role) bool {
	if _, ok := Normalize(string(role)); !ok {
		return false
	}
	if len(required) == 0 {
		return true
	}
	for _, candidate := range required {
		if role == candidate {
			return true
		}
	}
	return false
}

func Normalize(role string) (Role, bool) {
	switch Role(role) {
	case RoleOwner, RoleAdmin, RoleMember:
		return Role(role), true
	default:
		return "", false
	}
}

// Assignable reports whether role can be granted through the add-member flow.
// Ownership is only ever assigned to the workspace creator.
func Assignable(role Role) bool {
	return role == RoleAdmin || role == RoleMember
}
