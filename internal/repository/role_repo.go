package repository

import (
	"context"
	"time"

	"restaurant-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PermissionRepository interface {
	Create(ctx context.Context, p *model.Permission) error
	Update(ctx context.Context, p *model.Permission) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error)
	FindByName(ctx context.Context, name string) (*model.Permission, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error)
	List(ctx context.Context, offset, limit int) ([]model.Permission, int64, error)
	CountReferences(ctx context.Context, id uuid.UUID) (int64, error)
	// EffectiveNames returns the union of direct and role-derived grants of a user.
	EffectiveNames(ctx context.Context, userID uuid.UUID) ([]string, error)
	GrantToUser(ctx context.Context, userID, permissionID uuid.UUID, by *uuid.UUID) error
	RevokeFromUser(ctx context.Context, userID, permissionID uuid.UUID) error
	DirectNames(ctx context.Context, userID uuid.UUID) ([]string, error)
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Create(ctx context.Context, p *model.Permission) error {
	return GetDB(ctx, r.db).Create(p).Error
}

func (r *permissionRepository) Update(ctx context.Context, p *model.Permission) error {
	return GetDB(ctx, r.db).Save(p).Error
}

func (r *permissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Permission{}).Error
}

func (r *permissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error) {
	var p model.Permission
	if err := GetDB(ctx, r.db).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *permissionRepository) FindByName(ctx context.Context, name string) (*model.Permission, error) {
	var p model.Permission
	if err := GetDB(ctx, r.db).First(&p, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *permissionRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error) {
	var perms []model.Permission
	if len(ids) == 0 {
		return perms, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Order("name asc").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *permissionRepository) List(ctx context.Context, offset, limit int) ([]model.Permission, int64, error) {
	var perms []model.Permission
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Permission{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("name asc").Offset(offset).Limit(limit).Find(&perms).Error; err != nil {
		return nil, 0, err
	}
	return perms, total, nil
}

func (r *permissionRepository) CountReferences(ctx context.Context, id uuid.UUID) (int64, error) {
	db := GetDB(ctx, r.db)
	var viaRoles, direct int64
	if err := db.Model(&model.RolePermission{}).Where("permission_id = ?", id).Count(&viaRoles).Error; err != nil {
		return 0, err
	}
	if err := db.Model(&model.UserPermission{}).Where("permission_id = ?", id).Count(&direct).Error; err != nil {
		return 0, err
	}
	return viaRoles + direct, nil
}

func (r *permissionRepository) EffectiveNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var names []string
	err := GetDB(ctx, r.db).Raw(`
		SELECT p.name FROM permissions p
		INNER JOIN user_permissions up ON up.permission_id = p.id
		WHERE up.user_id = ?
		UNION
		SELECT p.name FROM permissions p
		INNER JOIN role_permissions rp ON rp.permission_id = p.id
		INNER JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = ?
	`, userID, userID).Scan(&names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (r *permissionRepository) GrantToUser(ctx context.Context, userID, permissionID uuid.UUID, by *uuid.UUID) error {
	grant := model.UserPermission{UserID: userID, PermissionID: permissionID, AssignedBy: by, AssignedAt: time.Now().UTC()}
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&grant).Error
}

func (r *permissionRepository) RevokeFromUser(ctx context.Context, userID, permissionID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("user_id = ? AND permission_id = ?", userID, permissionID).Delete(&model.UserPermission{}).Error
}

func (r *permissionRepository) DirectNames(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var names []string
	err := GetDB(ctx, r.db).Raw(`
		SELECT p.name FROM permissions p
		INNER JOIN user_permissions up ON up.permission_id = p.id
		WHERE up.user_id = ?
		ORDER BY p.name
	`, userID).Scan(&names).Error
	return names, err
}

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	Update(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	FindByName(ctx context.Context, name string) (*model.Role, error)
	List(ctx context.Context, offset, limit int) ([]model.Role, int64, error)
	Permissions(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error)
	ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID, by *uuid.UUID) error
	CountUsers(ctx context.Context, roleID uuid.UUID) (int64, error)
	AssignToUser(ctx context.Context, userID, roleID uuid.UUID, by *uuid.UUID) error
	RemoveFromUser(ctx context.Context, userID, roleID uuid.UUID) error
	RolesOfUser(ctx context.Context, userID uuid.UUID) ([]model.Role, error)
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Create(role).Error
}

func (r *roleRepository) Update(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Save(role).Error
}

// Delete removes the role with its permission links and user assignments.
func (r *roleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("role_id = ?", id).Delete(&model.RolePermission{}).Error; err != nil {
		return err
	}
	if err := db.Where("role_id = ?", id).Delete(&model.UserRole{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Role{}).Error
}

func (r *roleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).First(&role, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FindByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).First(&role, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) List(ctx context.Context, offset, limit int) ([]model.Role, int64, error) {
	var roles []model.Role
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Role{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("name asc").Offset(offset).Limit(limit).Find(&roles).Error; err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

func (r *roleRepository) Permissions(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error) {
	var perms []model.Permission
	err := GetDB(ctx, r.db).
		Joins("INNER JOIN role_permissions rp ON rp.permission_id = permissions.id").
		Where("rp.role_id = ?", roleID).
		Order("permissions.name asc").
		Find(&perms).Error
	return perms, err
}

func (r *roleRepository) ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID, by *uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("role_id = ?", roleID).Delete(&model.RolePermission{}).Error; err != nil {
		return err
	}
	if len(permissionIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	links := make([]model.RolePermission, 0, len(permissionIDs))
	for _, pid := range permissionIDs {
		links = append(links, model.RolePermission{PermissionID: pid, RoleID: roleID, AssignedBy: by, AssignedAt: now})
	}
	return db.Create(&links).Error
}

func (r *roleRepository) CountUsers(ctx context.Context, roleID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.UserRole{}).Where("role_id = ?", roleID).Count(&count).Error
	return count, err
}

func (r *roleRepository) AssignToUser(ctx context.Context, userID, roleID uuid.UUID, by *uuid.UUID) error {
	link := model.UserRole{UserID: userID, RoleID: roleID, AssignedBy: by, AssignedAt: time.Now().UTC()}
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
}

func (r *roleRepository) RemoveFromUser(ctx context.Context, userID, roleID uuid.UUID) error {
	return GetDB(ctx, r.db).Where("user_id = ? AND role_id = ?", userID, roleID).Delete(&model.UserRole{}).Error
}

func (r *roleRepository) RolesOfUser(ctx context.Context, userID uuid.UUID) ([]model.Role, error) {
	var roles []model.Role
	err := GetDB(ctx, r.db).
		Joins("INNER JOIN user_roles ur ON ur.role_id = roles.id").
		Where("ur.user_id = ?", userID).
		Order("roles.name asc").
		Find(&roles).Error
	return roles, err
}
