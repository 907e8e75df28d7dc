package rbac

import "github.com/civic-tally/tally/internal/shared"

// PermissionRecord is a stored permission.
type PermissionRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Action      string `json:"action"`
}

// Permission returns the resolved form handed to callers.
func (p PermissionRecord) Permission() shared.Permission {
	return shared.Permission{Name: p.Name, Description: p.Description, Action: p.Action}
}
