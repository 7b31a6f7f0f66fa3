package service

import (
	"context"
	"fmt"

	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/repository"
	"restaurant-backend/pkg/apperror"

	"github.com/google/uuid"
)

// PermissionSet is a user's effective permissions. All is set for
// superusers instead of materialising every name.
type PermissionSet struct {
	All   bool
	names map[permission.Name]struct{}
}

func newPermissionSet(raw []string) PermissionSet {
	set := PermissionSet{names: make(map[permission.Name]struct{}, len(raw))}
	for _, r := range raw {
		set.names[permission.Name(r)] = struct{}{}
	}
	return set
}

// Has reports whether n is granted. Names missing from the registry never match.
func (s PermissionSet) Has(n permission.Name) bool {
	if !permission.Known(n) {
		return false
	}
	if s.All {
		return true
	}
	_, ok := s.names[n]
	return ok
}

// Names lists the granted registry names in lexical order.
func (s PermissionSet) Names() []permission.Name {
	out := make([]permission.Name, 0, len(s.names))
	if s.All {
		for _, d := range permission.All() {
			out = append(out, d.Name)
		}
		return permission.Sorted(out)
	}
	for n := range s.names {
		if permission.Known(n) {
			out = append(out, n)
		}
	}
	return permission.Sorted(out)
}

// PermissionResolver reads grants fresh from the database on every call.
type PermissionResolver struct {
	users repository.UserRepository
	perms repository.PermissionRepository
}

func NewPermissionResolver(users repository.UserRepository, perms repository.PermissionRepository) *PermissionResolver {
	return &PermissionResolver{users: users, perms: perms}
}

// EffectivePermissions is the union of direct grants and grants reachable through roles.
func (r *PermissionResolver) EffectivePermissions(ctx context.Context, userID uuid.UUID) (PermissionSet, error) {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return PermissionSet{}, apperror.NotFound("user %s not found", userID)
		}
		return PermissionSet{}, fmt.Errorf("failed to load user: %w", err)
	}
	if user.IsSuperuser {
		return PermissionSet{All: true}, nil
	}

	names, err := r.perms.EffectiveNames(ctx, userID)
	if err != nil {
		return PermissionSet{}, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	return newPermissionSet(names), nil
}

// Check reports whether actor holds every required permission.
func (r *PermissionResolver) Check(ctx context.Context, actor Actor, required ...permission.Name) (bool, error) {
	if actor.IsSuperuser || len(required) == 0 {
		return true, nil
	}
	set, err := r.EffectivePermissions(ctx, actor.ID)
	if err != nil {
		return false, err
	}
	for _, n := range required {
		if !set.Has(n) {
			return false, nil
		}
	}
	return true, nil
}

// CheckAny reports whether actor holds at least one of the required permissions.
func (r *PermissionResolver) CheckAny(ctx context.Context, actor Actor, required ...permission.Name) (bool, error) {
	if actor.IsSuperuser {
		return true, nil
	}
	if len(required) == 0 {
		return false, nil
	}
	set, err := r.EffectivePermissions(ctx, actor.ID)
	if err != nil {
		return false, err
	}
	for _, n := range required {
		if set.Has(n) {
			return true, nil
		}
	}
	return false, nil
}
