package rbac

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/civic-tally/tally/internal/shared"
)

// PermissionStore loads permission assignments.
type PermissionStore interface {
	DirectPermissions(ctx context.Context, principalID int64) ([]shared.Permission, error)
	RolePermissions(ctx context.Context, principalID int64) ([]shared.Permission, error)
	ListPermissions(ctx context.Context) ([]PermissionRecord, error)
}

// Service resolves effective permissions.
type Service struct {
	store PermissionStore
}

// NewService constructs a Service.
func NewService(store PermissionStore) *Service {
	return &Service{store: store}
}

// EffectivePermissions returns the direct permissions of a principal when it
// has any; otherwise the union of its roles' permissions, one entry per name.
// Direct and role permissions are never merged.
func (s *Service) EffectivePermissions(ctx context.Context, principalID int64) ([]shared.Permission, error) {
	direct, err := s.store.DirectPermissions(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("rbac: direct permissions: %w", err)
	}
	if len(direct) > 0 {
		return direct, nil
	}

	viaRoles, err := s.store.RolePermissions(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("rbac: role permissions: %w", err)
	}
	perms := lo.UniqBy(viaRoles, func(p shared.Permission) string { return p.Name })
	if perms == nil {
		perms = []shared.Permission{}
	}
	return perms, nil
}

// ListPermissions returns every stored permission ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	return s.store.ListPermissions(ctx)
}

// Allows reports whether perms contains action.
func Allows(perms []shared.Permission, action string) bool {
	return lo.ContainsBy(perms, func(p shared.Permission) bool { return p.Action == action })
}
