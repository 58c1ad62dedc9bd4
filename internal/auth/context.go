package auth

import "strings"

type UserType string
type OrgRole string

const (
	UserTypeSuperAdmin UserType = "SUPER_ADMIN"
	UserTypeOrgUser    UserType = "ORG_USER"

	// Admin Cliente
	OrgRoleAdmin OrgRole = "ADMIN"
	// Operador
	OrgRoleOperator OrgRole = "OPERATOR"
	// Consulta
	OrgRoleViewer OrgRole = "VIEWER"
)

// ParseOrgRole accepts the role code in any case.
func ParseOrgRole(s string) (OrgRole, bool) {
	switch OrgRole(strings.ToUpper(strings.TrimSpace(s))) {
	case OrgRoleAdmin:
		return OrgRoleAdmin, true
	case OrgRoleOperator:
		return OrgRoleOperator, true
	case OrgRoleViewer:
		return OrgRoleViewer, true
	}
	return "", false
}

// CurrentUser = info singkat user yang lagi login
type CurrentUser struct {
	ID             int64
	Email          string
	FullName       string
	UserType       UserType
	OrganizationID *int64 // nil untuk SUPER_ADMIN
	OrgRole        *OrgRole
}

const ContextUserKey = "currentUser"

func (cu CurrentUser) IsSuperAdmin() bool {
	return cu.UserType == UserTypeSuperAdmin
}

func (cu CurrentUser) IsOrgAdmin() bool {
	return cu.UserType == UserTypeOrgUser && cu.OrgRole != nil && *cu.OrgRole == OrgRoleAdmin
}

// Can reports whether the user holds permission p.
func (cu CurrentUser) Can(p Permission) bool {
	if cu.IsSuperAdmin() {
		return true
	}
	if cu.OrgRole == nil {
		return false
	}
	_, ok := rolePermissions[*cu.OrgRole][p]
	return ok
}
