package repository

import (
	"context"

	"restaurant-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TableFilter struct {
	RestaurantID *uuid.UUID
	Status       string
}

type TableRepository interface {
	Create(ctx context.Context, table *model.Table) error
	Update(ctx context.Context, table *model.Table) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Table, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Table, error)
	FindByNumber(ctx context.Context, restaurantID uuid.UUID, number int) (*model.Table, error)
	FindByActiveOrder(ctx context.Context, orderID uuid.UUID) ([]model.Table, error)
	List(ctx context.Context, filter TableFilter, offset, limit int) ([]model.Table, int64, error)
	BackfillStatus(ctx context.Context, status model.TableStatus) (int64, error)
}

type tableRepository struct {
	db *gorm.DB
}

func NewTableRepository(db *gorm.DB) TableRepository {
	return &tableRepository{db: db}
}

func (r *tableRepository) Create(ctx context.Context, table *model.Table) error {
	return GetDB(ctx, r.db).Create(table).Error
}

func (r *tableRepository) Update(ctx context.Context, table *model.Table) error {
	return GetDB(ctx, r.db).Save(table).Error
}

func (r *tableRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Table{}).Error
}

func (r *tableRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Table, error) {
	var table model.Table
	if err := GetDB(ctx, r.db).First(&table, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *tableRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Table, error) {
	var table model.Table
	if err := forUpdate(GetDB(ctx, r.db)).Where("id = ?", id).First(&table).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *tableRepository) FindByNumber(ctx context.Context, restaurantID uuid.UUID, number int) (*model.Table, error) {
	var table model.Table
	if err := GetDB(ctx, r.db).Where("restaurant_id = ? AND number = ?", restaurantID, number).First(&table).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *tableRepository) FindByActiveOrder(ctx context.Context, orderID uuid.UUID) ([]model.Table, error) {
	var tables []model.Table
	err := forUpdate(GetDB(ctx, r.db)).Where("active_order_id = ?", orderID).Find(&tables).Error
	return tables, err
}

func (r *tableRepository) List(ctx context.Context, filter TableFilter, offset, limit int) ([]model.Table, int64, error) {
	var tables []model.Table
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Table{})
	if filter.RestaurantID != nil {
		query = query.Where("restaurant_id = ?", *filter.RestaurantID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("number asc").Offset(offset).Limit(limit).Find(&tables).Error; err != nil {
		return nil, 0, err
	}
	return tables, total, nil
}

// BackfillStatus sets status on rows where it is NULL or empty and returns how many changed.
func (r *tableRepository) BackfillStatus(ctx context.Context, status model.TableStatus) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Table{}).
		Where("status IS NULL OR status = ''").
		Update("status", status)
	return res.RowsAffected, res.Error
}
