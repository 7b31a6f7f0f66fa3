package repository

import (
	"context"

	"restaurant-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CorrectionFilter struct {
	InvoiceID *uuid.UUID
	Status    string
	Type      string
}

type CorrectionRepository interface {
	Create(ctx context.Context, correction *model.InvoiceCorrection) error
	Update(ctx context.Context, correction *model.InvoiceCorrection) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.InvoiceCorrection, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.InvoiceCorrection, error)
	List(ctx context.Context, filter CorrectionFilter, offset, limit int) ([]model.InvoiceCorrection, int64, error)
	CountByInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error)
}

type correctionRepository struct {
	db *gorm.DB
}

func NewCorrectionRepository(db *gorm.DB) CorrectionRepository {
	return &correctionRepository{db: db}
}

func (r *correctionRepository) Create(ctx context.Context, correction *model.InvoiceCorrection) error {
	return GetDB(ctx, r.db).Create(correction).Error
}

func (r *correctionRepository) Update(ctx context.Context, correction *model.InvoiceCorrection) error {
	return GetDB(ctx, r.db).Save(correction).Error
}

func (r *correctionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.InvoiceCorrection{}).Error
}

func (r *correctionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.InvoiceCorrection, error) {
	var correction model.InvoiceCorrection
	if err := GetDB(ctx, r.db).First(&correction, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &correction, nil
}

func (r *correctionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.InvoiceCorrection, error) {
	var correction model.InvoiceCorrection
	if err := forUpdate(GetDB(ctx, r.db)).Where("id = ?", id).First(&correction).Error; err != nil {
		return nil, err
	}
	return &correction, nil
}

func (r *correctionRepository) List(ctx context.Context, filter CorrectionFilter, offset, limit int) ([]model.InvoiceCorrection, int64, error) {
	var corrections []model.InvoiceCorrection
	var total int64

	query := GetDB(ctx, r.db).Model(&model.InvoiceCorrection{})
	if filter.InvoiceID != nil {
		query = query.Where("original_invoice_id = ?", *filter.InvoiceID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("date desc").Offset(offset).Limit(limit).Find(&corrections).Error; err != nil {
		return nil, 0, err
	}
	return corrections, total, nil
}

func (r *correctionRepository) CountByInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.InvoiceCorrection{}).
		Where("original_invoice_id = ? OR correction_invoice_id = ?", invoiceID, invoiceID).
		Count(&count).Error
	return count, err
}
