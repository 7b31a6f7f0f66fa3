package model

import (
	"time"

	"github.com/google/uuid"
)

// Permission is a persisted registry entry. Name is immutable once referenced.
type Permission struct {
	Base
	Name        string `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

// Role groups permissions. System roles are seeded and cannot be deleted.
type Role struct {
	Base
	Name        string `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	IsSystem    bool   `gorm:"not null" json:"is_system"`
}

type RolePermission struct {
	PermissionID uuid.UUID  `gorm:"type:uuid;primaryKey" json:"permission_id"`
	RoleID       uuid.UUID  `gorm:"type:uuid;primaryKey;index" json:"role_id"`
	AssignedBy   *uuid.UUID `gorm:"type:uuid" json:"assigned_by"`
	AssignedAt   time.Time  `gorm:"not null" json:"assigned_at"`
}

// UserRole is a role assignment.
type UserRole struct {
	UserID     uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	RoleID     uuid.UUID  `gorm:"type:uuid;primaryKey;index" json:"role_id"`
	AssignedBy *uuid.UUID `gorm:"type:uuid" json:"assigned_by"`
	AssignedAt time.Time  `gorm:"not null" json:"assigned_at"`
}

// UserPermission is a direct grant that bypasses roles.
type UserPermission struct {
	UserID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	PermissionID uuid.UUID  `gorm:"type:uuid;primaryKey;index" json:"permission_id"`
	AssignedBy   *uuid.UUID `gorm:"type:uuid" json:"assigned_by"`
	AssignedAt   time.Time  `gorm:"not null" json:"assigned_at"`
}
