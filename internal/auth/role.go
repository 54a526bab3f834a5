package auth

import "strings"

// Role is the closed set of principal roles. Values arriving from
// tokens or the database are validated once through ParseRole; an
// unknown role carries zero permissions.
type Role string

const (
	RoleUser        Role = "USER"
	RoleAdmin       Role = "ADMIN"
	RoleNodeOfficer Role = "NODE_OFFICER"
)

// ParseRole normalizes a raw role string. The boolean reports whether
// the value is one of the known roles.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	case RoleNodeOfficer:
		return RoleNodeOfficer, true
	default:
		return "", false
	}
}

// Action is a capability verb.
type Action string

const (
	ActionCreate   Action = "create"
	ActionRead     Action = "read"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionValidate Action = "validate"
	ActionManage   Action = "manage"
	ActionView     Action = "view"
	ActionAssign   Action = "assign"
)

// Subject is a capability target.
type Subject string

const (
	SubjectMetadata     Subject = "metadata"
	SubjectUser         Subject = "user"
	SubjectRole         Subject = "role"
	SubjectOrganization Subject = "organization"
	SubjectAnalytics    Subject = "analytics"
	SubjectSettings     Subject = "settings"
)

// Permission pairs an action with a subject.
type Permission struct {
	Action  Action
	Subject Subject
}

// The static role→permission matrix. ADMIN is a strict superset of
// NODE_OFFICER, which is a strict superset of USER.
var userPermissions = []Permission{
	{ActionCreate, SubjectMetadata},
	{ActionRead, SubjectMetadata},
	{ActionUpdate, SubjectMetadata},
}

var nodeOfficerPermissions = append([]Permission{
	{ActionDelete, SubjectMetadata},
	{ActionValidate, SubjectMetadata},
	{ActionRead, SubjectOrganization},
	{ActionView, SubjectAnalytics},
}, userPermissions...)

var adminPermissions = append([]Permission{
	{ActionCreate, SubjectUser},
	{ActionRead, SubjectUser},
	{ActionUpdate, SubjectUser},
	{ActionDelete, SubjectUser},
	{ActionManage, SubjectUser},
	{ActionCreate, SubjectRole},
	{ActionRead, SubjectRole},
	{ActionUpdate, SubjectRole},
	{ActionDelete, SubjectRole},
	{ActionAssign, SubjectRole},
	{ActionManage, SubjectRole},
	{ActionCreate, SubjectOrganization},
	{ActionUpdate, SubjectOrganization},
	{ActionDelete, SubjectOrganization},
	{ActionManage, SubjectOrganization},
	{ActionManage, SubjectSettings},
	{ActionManage, SubjectMetadata},
}, nodeOfficerPermissions...)

var rolePermissions = map[Role]map[Permission]struct{}{
	RoleUser:        permissionSet(userPermissions),
	RoleNodeOfficer: permissionSet(nodeOfficerPermissions),
	RoleAdmin:       permissionSet(adminPermissions),
}

func permissionSet(perms []Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasPermission reports whether role grants the permission. Pure lookup
// over static configuration; unknown roles fail closed.
func HasPermission(role Role, perm Permission) bool {
	set, ok := rolePermissions[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

// PermissionsForRole returns a copy of the role's grants, used by the
// introspection endpoint.
func PermissionsForRole(role Role) []Permission {
	set, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	return out
}

// OwnerOrAdmin reports whether the principal may touch a resource owned
// by ownerID: either it is their own, or they hold the ADMIN role.
func OwnerOrAdmin(p Principal, ownerID string) bool {
	if p.Role == RoleAdmin {
		return true
	}
	return p.ID != "" && p.ID == ownerID
}
