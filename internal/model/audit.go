package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateInvoice       = "CREATE_INVOICE"
	ActionUpdateInvoiceStatus = "UPDATE_INVOICE_STATUS"
	ActionDeleteInvoice       = "DELETE_INVOICE"
	ActionCreateInvoiceLine   = "CREATE_INVOICE_LINE"
	ActionUpdateInvoiceLine   = "UPDATE_INVOICE_LINE"
	ActionDeleteInvoiceLine   = "DELETE_INVOICE_LINE"

	ActionCreatePayment = "CREATE_PAYMENT"
	ActionUpdatePayment = "UPDATE_PAYMENT"
	ActionDeletePayment = "DELETE_PAYMENT"

	ActionCreateCorrection  = "CREATE_CORRECTION"
	ActionApproveCorrection = "APPROVE_CORRECTION"
	ActionRejectCorrection  = "REJECT_CORRECTION"
	ActionDeleteCorrection  = "DELETE_CORRECTION"

	ActionCreateOrder       = "CREATE_ORDER"
	ActionUpdateOrderStatus = "UPDATE_ORDER_STATUS"
	ActionDeleteOrder       = "DELETE_ORDER"
	ActionCreateOrderLine   = "CREATE_ORDER_LINE"
	ActionUpdateOrderLine   = "UPDATE_ORDER_LINE"
	ActionDeleteOrderLine   = "DELETE_ORDER_LINE"

	ActionAdjustStock = "ADJUST_STOCK"

	ActionAssignTable  = "ASSIGN_TABLE"
	ActionReleaseTable = "RELEASE_TABLE"
	ActionDeleteTable  = "DELETE_TABLE"

	ActionUpdateRolePermissions = "UPDATE_ROLE_PERMISSIONS"
	ActionAssignRole            = "ASSIGN_ROLE"
	ActionGrantPermission       = "GRANT_PERMISSION"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for system jobs
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:text" json:"details"` // JSON payload
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
