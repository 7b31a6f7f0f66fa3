package service

import (
	"context"
	"fmt"
	"strings"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/repository"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/pagination"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// --- DTOs ---

type CreatePermissionRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

type UpdatePermissionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type CreateRoleRequest struct {
	Name          string      `json:"name" validate:"required,max=50"`
	Description   string      `json:"description"`
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

type UpdateRoleRequest struct {
	Name        string `json:"name" validate:"required,max=50"`
	Description string `json:"description"`
}

type UpdateRolePermissionsRequest struct {
	PermissionIDs []uuid.UUID `json:"permission_ids"`
}

type RoleResponse struct {
	model.Role
	Permissions []model.Permission `json:"permissions"`
}

// UserAccessResponse is a user's roles, direct grants and the resolved union.
type UserAccessResponse struct {
	UserID      uuid.UUID         `json:"user_id"`
	IsSuperuser bool              `json:"is_superuser"`
	Roles       []model.Role      `json:"roles"`
	Direct      []string          `json:"direct_permissions"`
	Effective   []permission.Name `json:"effective_permissions"`
}

// --- Interface ---

type RBACService interface {
	CreatePermission(ctx context.Context, actor Actor, req CreatePermissionRequest) (*model.Permission, error)
	UpdatePermission(ctx context.Context, actor Actor, id uuid.UUID, req UpdatePermissionRequest) (*model.Permission, error)
	DeletePermission(ctx context.Context, actor Actor, id uuid.UUID) error
	ListPermissions(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[model.Permission], error)

	CreateRole(ctx context.Context, actor Actor, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, actor Actor, id uuid.UUID, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, actor Actor, id uuid.UUID) error
	GetRole(ctx context.Context, actor Actor, id uuid.UUID) (*RoleResponse, error)
	ListRoles(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[model.Role], error)
	SetRolePermissions(ctx context.Context, actor Actor, roleID uuid.UUID, req UpdateRolePermissionsRequest) (*RoleResponse, error)

	AssignRole(ctx context.Context, actor Actor, userID, roleID uuid.UUID) error
	RemoveRole(ctx context.Context, actor Actor, userID, roleID uuid.UUID) error
	GrantPermission(ctx context.Context, actor Actor, userID, permissionID uuid.UUID) error
	RevokePermission(ctx context.Context, actor Actor, userID, permissionID uuid.UUID) error
	UserAccess(ctx context.Context, actor Actor, userID uuid.UUID) (*UserAccessResponse, error)

	SyncRegistry(ctx context.Context) error
	SeedDefaultRoles(ctx context.Context) error
}

type rbacService struct {
	perms     repository.PermissionRepository
	roles     repository.RoleRepository
	users     repository.UserRepository
	audit     repository.AuditRepository
	txManager repository.TransactionManager
	guard     *Guard
	logger    *zap.Logger
}

func NewRBACService(
	perms repository.PermissionRepository,
	roles repository.RoleRepository,
	users repository.UserRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	guard *Guard,
	logger *zap.Logger,
) RBACService {
	return &rbacService{
		perms:     perms,
		roles:     roles,
		users:     users,
		audit:     audit,
		txManager: txManager,
		guard:     guard,
		logger:    loggerOrNop(logger),
	}
}

// --- Permissions ---

// CreatePermission only accepts names from the registry.
func (s *rbacService) CreatePermission(ctx context.Context, actor Actor, req CreatePermissionRequest) (*model.Permission, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.guard.Require(ctx, actor, permission.PermissionWrite); err != nil {
		return nil, err
	}
	name, err := permission.Parse(req.Name)
	if err != nil {
		return nil, apperror.Invalid("%s", err.Error())
	}
	if _, err := s.perms.FindByName(ctx, name.String()); err == nil {
		return nil, apperror.Conflict("permission %s already exists", name)
	} else if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check permission name: %w", err)
	}

	p := &model.Permission{Name: name.String(), Description: req.Description}
	if err := s.perms.Create(ctx, p); err != nil {
		if repository.IsDuplicate(err) {
			return nil, apperror.Conflict("permission %s already exists", name)
		}
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}
	return p, nil
}

// UpdatePermission may always change the description. The name is frozen
// once any role or user references the permission.
func (s *rbacService) UpdatePermission(ctx context.Context, actor Actor, id uuid.UUID, req UpdatePermissionRequest) (*model.Permission, error) {
	p, err := s.perms.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "permission", id)
	}
	if err := s.guard.Require(ctx, actor, permission.PermissionWrite); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if req.Name != nil && strings.TrimSpace(*req.Name) != p.Name {
			name, err := permission.Parse(*req.Name)
			if err != nil {
				return apperror.Invalid("%s", err.Error())
			}
			refs, err := s.perms.CountReferences(txCtx, p.ID)
			if err != nil {
				return fmt.Errorf("failed to count permission references: %w", err)
			}
			if refs > 0 {
				return apperror.ConflictWithDependents(refs, "permission %s is referenced %d times and cannot be renamed", p.Name, refs)
			}
			if _, err := s.perms.FindByName(txCtx, name.String()); err == nil {
				return apperror.Conflict("permission %s already exists", name)
			} else if !repository.IsNotFound(err) {
				return fmt.Errorf("failed to check permission name: %w", err)
			}
			p.Name = name.String()
		}
		if req.Description != nil {
			p.Description = *req.Description
		}
		if err := s.perms.Update(txCtx, p); err != nil {
			return fmt.Errorf("failed to update permission: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *rbacService) DeletePermission(ctx context.Context, actor Actor, id uuid.UUID) error {
	p, err := s.perms.FindByID(ctx, id)
	if err != nil {
		return lookupErr(err, "permission", id)
	}
	if err := s.guard.Require(ctx, actor, permission.PermissionDelete); err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		refs, err := s.perms.CountReferences(txCtx, p.ID)
		if err != nil {
			return fmt.Errorf("failed to count permission references: %w", err)
		}
		if refs > 0 {
			return apperror.ConflictWithDependents(refs, "permission %s is referenced %d times", p.Name, refs)
		}
		if err := s.perms.Delete(txCtx, p.ID); err != nil {
			return fmt.Errorf("failed to delete permission: %w", err)
		}
		return nil
	})
}

func (s *rbacService) ListPermissions(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[model.Permission], error) {
	if err := s.guard.Require(ctx, actor, permission.PermissionRead); err != nil {
		return pagination.Page[model.Permission]{}, err
	}
	perms, total, err := s.perms.List(ctx, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.Permission]{}, fmt.Errorf("failed to fetch permissions: %w", err)
	}
	return pagination.NewPage(perms, total, p), nil
}

// --- Roles ---

func (s *rbacService) CreateRole(ctx context.Context, actor Actor, req CreateRoleRequest) (*RoleResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.guard.Require(ctx, actor, permission.RoleWrite); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureRoleNameFree(ctx, name, uuid.Nil); err != nil {
		return nil, err
	}

	role := &model.Role{Name: name, Description: req.Description}
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.Create(txCtx, role); err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}
		if len(req.PermissionIDs) == 0 {
			return nil
		}
		return s.replacePermissions(txCtx, actor, role, req.PermissionIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.roleResponse(ctx, role)
}

func (s *rbacService) UpdateRole(ctx context.Context, actor Actor, id uuid.UUID, req UpdateRoleRequest) (*RoleResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "role", id)
	}
	if err := s.guard.Require(ctx, actor, permission.RoleWrite); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if role.IsSystem && name != role.Name {
		return nil, apperror.InvalidState("system role %s cannot be renamed", role.Name)
	}
	if err := s.ensureRoleNameFree(ctx, name, role.ID); err != nil {
		return nil, err
	}

	role.Name = name
	role.Description = req.Description
	if err := s.roles.Update(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	return s.roleResponse(ctx, role)
}

func (s *rbacService) DeleteRole(ctx context.Context, actor Actor, id uuid.UUID) error {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return lookupErr(err, "role", id)
	}
	if err := s.guard.Require(ctx, actor, permission.RoleDelete); err != nil {
		return err
	}
	if role.IsSystem {
		return apperror.InvalidState("cannot delete system role %s", role.Name)
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		users, err := s.roles.CountUsers(txCtx, role.ID)
		if err != nil {
			return fmt.Errorf("failed to count role members: %w", err)
		}
		if users > 0 {
			return apperror.ConflictWithDependents(users, "role %s is assigned to %d users", role.Name, users)
		}
		if err := s.roles.Delete(txCtx, role.ID); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return nil
	})
}

func (s *rbacService) GetRole(ctx context.Context, actor Actor, id uuid.UUID) (*RoleResponse, error) {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "role", id)
	}
	if err := s.guard.Require(ctx, actor, permission.RoleRead); err != nil {
		return nil, err
	}
	return s.roleResponse(ctx, role)
}

func (s *rbacService) ListRoles(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[model.Role], error) {
	if err := s.guard.Require(ctx, actor, permission.RoleRead); err != nil {
		return pagination.Page[model.Role]{}, err
	}
	roles, total, err := s.roles.List(ctx, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.Role]{}, fmt.Errorf("failed to fetch roles: %w", err)
	}
	return pagination.NewPage(roles, total, p), nil
}

// SetRolePermissions replaces the role's permission set, recording who assigned it.
func (s *rbacService) SetRolePermissions(ctx context.Context, actor Actor, roleID uuid.UUID, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return nil, lookupErr(err, "role", roleID)
	}
	if err := s.guard.Require(ctx, actor, permission.RoleWrite); err != nil {
		return nil, err
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		return s.replacePermissions(txCtx, actor, role, req.PermissionIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.roleResponse(ctx, role)
}

func (s *rbacService) replacePermissions(ctx context.Context, actor Actor, role *model.Role, ids []uuid.UUID) error {
	ids = uniqueIDs(ids)
	found, err := s.perms.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to fetch permissions: %w", err)
	}
	if len(found) != len(ids) {
		return apperror.Invalid("%d of %d permission ids do not exist", len(ids)-len(found), len(ids))
	}
	if err := s.roles.ReplacePermissions(ctx, role.ID, ids, actor.actorRef()); err != nil {
		return fmt.Errorf("failed to assign permissions: %w", err)
	}
	names := make([]string, 0, len(found))
	for _, p := range found {
		names = append(names, p.Name)
	}
	return writeAudit(ctx, s.audit, actor, model.ActionUpdateRolePermissions, role.ID, role.Name, map[string]interface{}{
		"permissions": names,
	})
}

func (s *rbacService) ensureRoleNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.roles.FindByName(ctx, name)
	if err == nil && existing.ID != self {
		return apperror.Conflict("role %q already exists", name)
	}
	if err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("failed to check role name: %w", err)
	}
	return nil
}

func (s *rbacService) roleResponse(ctx context.Context, role *model.Role) (*RoleResponse, error) {
	perms, err := s.roles.Permissions(ctx, role.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch role permissions: %w", err)
	}
	return &RoleResponse{Role: *role, Permissions: perms}, nil
}

// --- Assignment ---

func (s *rbacService) AssignRole(ctx context.Context, actor Actor, userID, roleID uuid.UUID) error {
	user, role, err := s.loadAssignment(ctx, actor, userID, roleID)
	if err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.AssignToUser(txCtx, user.ID, role.ID, actor.actorRef()); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		return writeAudit(txCtx, s.audit, actor, model.ActionAssignRole, user.ID, user.Email, map[string]interface{}{
			"role":     role.Name,
			"assigned": true,
		})
	})
}

func (s *rbacService) RemoveRole(ctx context.Context, actor Actor, userID, roleID uuid.UUID) error {
	user, role, err := s.loadAssignment(ctx, actor, userID, roleID)
	if err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.RemoveFromUser(txCtx, user.ID, role.ID); err != nil {
			return fmt.Errorf("failed to remove role: %w", err)
		}
		return writeAudit(txCtx, s.audit, actor, model.ActionAssignRole, user.ID, user.Email, map[string]interface{}{
			"role":     role.Name,
			"assigned": false,
		})
	})
}

func (s *rbacService) loadAssignment(ctx context.Context, actor Actor, userID, roleID uuid.UUID) (*model.User, *model.Role, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, lookupErr(err, "user", userID)
	}
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return nil, nil, lookupErr(err, "role", roleID)
	}
	if err := authorizeUser(ctx, s.guard, actor, user, permission.UserWrite, permission.RoleRead); err != nil {
		return nil, nil, err
	}
	return user, role, nil
}

func (s *rbacService) GrantPermission(ctx context.Context, actor Actor, userID, permissionID uuid.UUID) error {
	user, p, err := s.loadGrant(ctx, actor, userID, permissionID)
	if err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.perms.GrantToUser(txCtx, user.ID, p.ID, actor.actorRef()); err != nil {
			return fmt.Errorf("failed to grant permission: %w", err)
		}
		return writeAudit(txCtx, s.audit, actor, model.ActionGrantPermission, user.ID, user.Email, map[string]interface{}{
			"permission": p.Name,
			"granted":    true,
		})
	})
}

func (s *rbacService) RevokePermission(ctx context.Context, actor Actor, userID, permissionID uuid.UUID) error {
	user, p, err := s.loadGrant(ctx, actor, userID, permissionID)
	if err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.perms.RevokeFromUser(txCtx, user.ID, p.ID); err != nil {
			return fmt.Errorf("failed to revoke permission: %w", err)
		}
		return writeAudit(txCtx, s.audit, actor, model.ActionGrantPermission, user.ID, user.Email, map[string]interface{}{
			"permission": p.Name,
			"granted":    false,
		})
	})
}

func (s *rbacService) loadGrant(ctx context.Context, actor Actor, userID, permissionID uuid.UUID) (*model.User, *model.Permission, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, lookupErr(err, "user", userID)
	}
	p, err := s.perms.FindByID(ctx, permissionID)
	if err != nil {
		return nil, nil, lookupErr(err, "permission", permissionID)
	}
	if err := authorizeUser(ctx, s.guard, actor, user, permission.PermissionWrite); err != nil {
		return nil, nil, err
	}
	return user, p, nil
}

// UserAccess is readable by the user themself without user.read.
func (s *rbacService) UserAccess(ctx context.Context, actor Actor, userID uuid.UUID) (*UserAccessResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "user", userID)
	}
	if actor.ID != user.ID {
		if err := authorizeUser(ctx, s.guard, actor, user, permission.UserRead); err != nil {
			return nil, err
		}
	}

	roles, err := s.roles.RolesOfUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}
	direct, err := s.perms.DirectNames(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch direct permissions: %w", err)
	}
	set, err := s.guard.Resolver().EffectivePermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &UserAccessResponse{
		UserID:      user.ID,
		IsSuperuser: user.IsSuperuser,
		Roles:       roles,
		Direct:      direct,
		Effective:   set.Names(),
	}, nil
}

// --- Seeding ---

// SyncRegistry upserts every registered permission, refreshing descriptions.
func (s *rbacService) SyncRegistry(ctx context.Context) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := permission.Validate(); err != nil {
			return err
		}
		created := 0
		for _, d := range permission.All() {
			existing, err := s.perms.FindByName(txCtx, d.Name.String())
			switch {
			case err == nil:
				if existing.Description != d.Description {
					existing.Description = d.Description
					if err := s.perms.Update(txCtx, existing); err != nil {
						return fmt.Errorf("failed to update permission %s: %w", d.Name, err)
					}
				}
			case repository.IsNotFound(err):
				if err := s.perms.Create(txCtx, &model.Permission{Name: d.Name.String(), Description: d.Description}); err != nil {
					return fmt.Errorf("failed to seed permission %s: %w", d.Name, err)
				}
				created++
			default:
				return fmt.Errorf("failed to load permission %s: %w", d.Name, err)
			}
		}
		s.logger.Info("permission registry synced", zap.Int("created", created))
		return nil
	})
}

// SeedDefaultRoles creates the built-in roles and resets their permission sets.
func (s *rbacService) SeedDefaultRoles(ctx context.Context) error {
	if err := s.SyncRegistry(ctx); err != nil {
		return err
	}
	system := SystemActor()
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		for _, g := range permission.DefaultGroups() {
			role, err := s.roles.FindByName(txCtx, g.Name)
			if err != nil {
				if !repository.IsNotFound(err) {
					return fmt.Errorf("failed to load role %s: %w", g.Name, err)
				}
				role = &model.Role{Name: g.Name, Description: g.Description, IsSystem: true}
				if err := s.roles.Create(txCtx, role); err != nil {
					return fmt.Errorf("failed to seed role %s: %w", g.Name, err)
				}
			}

			ids := make([]uuid.UUID, 0, len(g.Permissions))
			for _, n := range g.Permissions {
				p, err := s.perms.FindByName(txCtx, n.String())
				if err != nil {
					return fmt.Errorf("failed to load permission %s: %w", n, err)
				}
				ids = append(ids, p.ID)
			}
			if err := s.replacePermissions(txCtx, system, role, ids); err != nil {
				return err
			}
		}
		return nil
	})
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
