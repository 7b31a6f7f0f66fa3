package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
	InvoiceVoided    InvoiceStatus = "voided"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoicePending, InvoicePaid, InvoiceCancelled, InvoiceVoided:
		return true
	}
	return false
}

// Closed invoices never change status automatically and accept no money movement.
func (s InvoiceStatus) Closed() bool {
	return s == InvoiceCancelled || s == InvoiceVoided
}

type InvoiceType string

const (
	InvoiceSale     InvoiceType = "sale"
	InvoicePurchase InvoiceType = "purchase"
)

func (t InvoiceType) Valid() bool {
	return t == InvoiceSale || t == InvoicePurchase
}

// Invoice monetary fields are derived from its lines, except that approved
// refund and adjustment corrections move Total afterwards.
type Invoice struct {
	Base
	Number       string          `gorm:"type:varchar(30);uniqueIndex;not null" json:"number"`
	Date         time.Time       `gorm:"not null;index" json:"date"`
	DueDate      *time.Time      `gorm:"index" json:"due_date"`
	Subtotal     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	TaxTotal     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"tax_total"`
	Total        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
	Status       InvoiceStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	Type         InvoiceType     `gorm:"type:varchar(20);not null;index" json:"type"`
	OrderID      *uuid.UUID      `gorm:"type:uuid;index" json:"order_id"`
	CustomerID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	RestaurantID uuid.UUID       `gorm:"type:uuid;not null;index" json:"restaurant_id"`
	CompanyID    *uuid.UUID      `gorm:"type:uuid;index" json:"company_id"`
	Notes        string          `gorm:"type:text" json:"notes"`
	Lines        []InvoiceLine   `gorm:"foreignKey:InvoiceID" json:"lines,omitempty"`
}

// InvoiceLine Subtotal and Total are computed server side on every write.
type InvoiceLine struct {
	Base
	InvoiceID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"invoice_id"`
	ProductID   *uuid.UUID      `gorm:"type:uuid;index" json:"product_id"`
	TaxRateID   *uuid.UUID      `gorm:"type:uuid" json:"tax_rate_id"`
	Description string          `gorm:"type:varchar(255)" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	Discount    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"discount"`
	Tax         decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"tax"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	Total       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total"`
}
