package model

import (
	"github.com/google/uuid"
)

type Company struct {
	Base
	Name       string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Address    string     `gorm:"type:varchar(255)" json:"address"`
	Phone      string     `gorm:"type:varchar(50)" json:"phone"`
	City       string     `gorm:"type:varchar(100)" json:"city"`
	Email      string     `gorm:"type:varchar(255)" json:"email"`
	Country    string     `gorm:"type:varchar(100)" json:"country"`
	PostalCode string     `gorm:"type:varchar(20)" json:"postal_code"`
	Website    string     `gorm:"type:varchar(255)" json:"website"`
	TaxRateID  *uuid.UUID `gorm:"type:uuid" json:"tax_rate_id"`
}

type Restaurant struct {
	Base
	CompanyID uuid.UUID `gorm:"type:uuid;not null;index" json:"company_id"`
	Name      string    `gorm:"type:varchar(255);not null;index" json:"name"`
	Address   string    `gorm:"type:varchar(255)" json:"address"`
	Phone     string    `gorm:"type:varchar(50)" json:"phone"`
	Email     string    `gorm:"type:varchar(255)" json:"email"`
}
