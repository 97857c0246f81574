package auth

import "sort"

// Role names a caller class
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleAnalyst Role = "analyst"
	RoleViewer  Role = "viewer"
)

// Actions checked at the boundary
const (
	ActionDeploy = "deploy"
	ActionDelete = "delete"
	ActionView   = "view"
	ActionEdit   = "edit"
)

var permissions = map[Role]map[string]bool{
	RoleAdmin:   {ActionDeploy: true, ActionDelete: true, ActionView: true, ActionEdit: true},
	RoleAnalyst: {ActionView: true, ActionEdit: true},
	RoleViewer:  {ActionView: true},
}

// Authorize reports whether role may perform action
func Authorize(role, action string) bool {
	return permissions[Role(role)][action]
}

// KnownRole reports whether role appears in the matrix
func KnownRole(role string) bool {
	_, ok := permissions[Role(role)]
	return ok
}

// Actions lists what role may do, sorted
func Actions(role string) []string {
	granted := permissions[Role(role)]
	out := make([]string, 0, len(granted))
	for action := range granted {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}
