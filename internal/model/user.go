package model

import (
	"github.com/google/uuid"
)

// User is both a staff account and, through CustomerID references, a customer.
type User struct {
	Base
	Email        string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName     string     `gorm:"type:varchar(255)" json:"full_name"`
	Password     string     `gorm:"type:varchar(255);not null" json:"-"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	IsSuperuser  bool       `gorm:"not null" json:"is_superuser"`
	CompanyID    *uuid.UUID `gorm:"type:uuid;index" json:"company_id"`
	RestaurantID *uuid.UUID `gorm:"type:uuid;index" json:"restaurant_id"`
}
