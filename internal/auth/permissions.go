package auth

import "sort"

type Resource string
type Action string

const (
	ResourceOrganization Resource = "organization"
	ResourceCategory     Resource = "category"
	ResourceZone         Resource = "zone"
	ResourceDevice       Resource = "device"
	ResourceMeasurement  Resource = "measurement"
	ResourceAlert        Resource = "alert"

	ActionView   Action = "view"
	ActionAdd    Action = "add"
	ActionChange Action = "change"
	ActionDelete Action = "delete"
)

var (
	allResources = []Resource{ResourceOrganization, ResourceCategory, ResourceZone, ResourceDevice, ResourceMeasurement, ResourceAlert}
	allActions   = []Action{ActionView, ActionAdd, ActionChange, ActionDelete}
)

// Permission is "<resource>.<action>", e.g. "zone.add".
type Permission string

func Perm(r Resource, a Action) Permission {
	return Permission(string(r) + "." + string(a))
}

type permSet map[Permission]struct{}

func setOf(perms ...Permission) permSet {
	s := make(permSet, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

var rolePermissions = map[OrgRole]permSet{
	OrgRoleAdmin:    adminPermissions(),
	OrgRoleOperator: operatorPermissions(),
	OrgRoleViewer:   viewerPermissions(),
}

// admin org: semua aksi pada data organisasinya, organisasi sendiri hanya view/change
func adminPermissions() permSet {
	var perms []Permission
	for _, r := range allResources {
		if r == ResourceOrganization {
			perms = append(perms, Perm(r, ActionView), Perm(r, ActionChange))
			continue
		}
		for _, a := range allActions {
			perms = append(perms, Perm(r, a))
		}
	}
	return setOf(perms...)
}

func operatorPermissions() permSet {
	return setOf(
		Perm(ResourceMeasurement, ActionView),
		Perm(ResourceMeasurement, ActionAdd),
		Perm(ResourceDevice, ActionView),
		Perm(ResourceAlert, ActionView),
		Perm(ResourceZone, ActionView),
		Perm(ResourceCategory, ActionView),
		Perm(ResourceOrganization, ActionView),
	)
}

func viewerPermissions() permSet {
	perms := make([]Permission, 0, len(allResources))
	for _, r := range allResources {
		perms = append(perms, Perm(r, ActionView))
	}
	return setOf(perms...)
}

// RoleInfo describes a role for listings and the seed command.
type RoleInfo struct {
	Code        OrgRole  `json:"code"`
	Label       string   `json:"label"`
	Permissions []string `json:"permissions"`
}

var roleLabels = map[OrgRole]string{
	OrgRoleAdmin:    "Admin Cliente",
	OrgRoleOperator: "Operador",
	OrgRoleViewer:   "Consulta",
}

func RoleLabel(r OrgRole) string {
	if l, ok := roleLabels[r]; ok {
		return l
	}
	return string(r)
}

// Roles returns the role catalogue in a stable order.
func Roles() []RoleInfo {
	out := make([]RoleInfo, 0, 3)
	for _, r := range []OrgRole{OrgRoleAdmin, OrgRoleOperator, OrgRoleViewer} {
		perms := make([]string, 0, len(rolePermissions[r]))
		for p := range rolePermissions[r] {
			perms = append(perms, string(p))
		}
		sort.Strings(perms)
		out = append(out, RoleInfo{Code: r, Label: RoleLabel(r), Permissions: perms})
	}
	return out
}
