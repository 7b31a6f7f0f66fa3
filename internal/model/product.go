package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Category struct {
	Base
	RestaurantID uuid.UUID `gorm:"type:uuid;not null;index" json:"restaurant_id"`
	Name         string    `gorm:"type:varchar(100);not null;index" json:"name"`
	Description  string    `gorm:"type:varchar(255)" json:"description"`
}

// TaxRate is global; Percentage is expressed in percent (21 means 21%).
type TaxRate struct {
	Base
	Name       string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Percentage decimal.Decimal `gorm:"type:decimal(9,4);not null" json:"percentage"`
}

// Product stock is never negative; order lines reserve it.
type Product struct {
	Base
	RestaurantID uuid.UUID       `gorm:"type:uuid;not null;index" json:"restaurant_id"`
	CategoryID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"category_id"`
	TaxRateID    *uuid.UUID      `gorm:"type:uuid" json:"tax_rate_id"`
	Name         string          `gorm:"type:varchar(255);not null;index" json:"name"`
	Description  string          `gorm:"type:text" json:"description"`
	Price        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"price"`
	Stock        int             `gorm:"not null" json:"stock"`
}
