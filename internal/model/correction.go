package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CorrectionType string

const (
	CorrectionVoid       CorrectionType = "void"
	CorrectionRefund     CorrectionType = "refund"
	CorrectionAdjustment CorrectionType = "adjustment"
	CorrectionCreditNote CorrectionType = "credit_note"
	CorrectionDebitNote  CorrectionType = "debit_note"
)

func (t CorrectionType) Valid() bool {
	switch t {
	case CorrectionVoid, CorrectionRefund, CorrectionAdjustment, CorrectionCreditNote, CorrectionDebitNote:
		return true
	}
	return false
}

type CorrectionStatus string

const (
	CorrectionPending  CorrectionStatus = "pending"
	CorrectionApproved CorrectionStatus = "approved"
	CorrectionRejected CorrectionStatus = "rejected"
)

// InvoiceCorrection leaves pending exactly once, to approved or rejected.
type InvoiceCorrection struct {
	Base
	Date                time.Time        `gorm:"not null" json:"date"`
	Reason              string           `gorm:"type:varchar(255);not null" json:"reason"`
	Type                CorrectionType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Amount              decimal.Decimal  `gorm:"type:decimal(18,4);not null" json:"amount"`
	Description         string           `gorm:"type:text" json:"description"`
	OriginalInvoiceID   uuid.UUID        `gorm:"type:uuid;not null;index" json:"original_invoice_id"`
	CorrectionInvoiceID *uuid.UUID       `gorm:"type:uuid" json:"correction_invoice_id"`
	PerformedBy         uuid.UUID        `gorm:"type:uuid;not null" json:"performed_by"`
	ApprovedBy          *uuid.UUID       `gorm:"type:uuid" json:"approved_by"`
	DecidedAt           *time.Time       `json:"decided_at"`
	Applied             bool             `gorm:"not null" json:"applied"`
	Status              CorrectionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
}
