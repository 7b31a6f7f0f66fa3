package repository

import (
	"context"

	"restaurant-backend/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CompanyRepository interface {
	Create(ctx context.Context, company *model.Company) error
	Update(ctx context.Context, company *model.Company) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Company, error)
	FindByName(ctx context.Context, name string) (*model.Company, error)
	List(ctx context.Context, onlyID *uuid.UUID, offset, limit int) ([]model.Company, int64, error)
	CountRestaurants(ctx context.Context, id uuid.UUID) (int64, error)
}

type companyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) CompanyRepository {
	return &companyRepository{db: db}
}

func (r *companyRepository) Create(ctx context.Context, company *model.Company) error {
	return GetDB(ctx, r.db).Create(company).Error
}

func (r *companyRepository) Update(ctx context.Context, company *model.Company) error {
	return GetDB(ctx, r.db).Save(company).Error
}

func (r *companyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Company{}).Error
}

func (r *companyRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Company, error) {
	var company model.Company
	if err := GetDB(ctx, r.db).First(&company, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *companyRepository) FindByName(ctx context.Context, name string) (*model.Company, error) {
	var company model.Company
	if err := GetDB(ctx, r.db).First(&company, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func (r *companyRepository) List(ctx context.Context, onlyID *uuid.UUID, offset, limit int) ([]model.Company, int64, error) {
	var companies []model.Company
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Company{})
	if onlyID != nil {
		query = query.Where("id = ?", *onlyID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("name asc").Offset(offset).Limit(limit).Find(&companies).Error; err != nil {
		return nil, 0, err
	}
	return companies, total, nil
}

func (r *companyRepository) CountRestaurants(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Restaurant{}).Where("company_id = ?", id).Count(&count).Error
	return count, err
}

type RestaurantRepository interface {
	Create(ctx context.Context, restaurant *model.Restaurant) error
	Update(ctx context.Context, restaurant *model.Restaurant) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Restaurant, error)
	List(ctx context.Context, companyID, onlyID *uuid.UUID, offset, limit int) ([]model.Restaurant, int64, error)
	// CountDependents counts tables, products, categories and orders owned by the restaurant.
	CountDependents(ctx context.Context, id uuid.UUID) (int64, error)
}

type restaurantRepository struct {
	db *gorm.DB
}

func NewRestaurantRepository(db *gorm.DB) RestaurantRepository {
	return &restaurantRepository{db: db}
}

func (r *restaurantRepository) Create(ctx context.Context, restaurant *model.Restaurant) error {
	return GetDB(ctx, r.db).Create(restaurant).Error
}

func (r *restaurantRepository) Update(ctx context.Context, restaurant *model.Restaurant) error {
	return GetDB(ctx, r.db).Save(restaurant).Error
}

func (r *restaurantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Restaurant{}).Error
}

func (r *restaurantRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Restaurant, error) {
	var restaurant model.Restaurant
	if err := GetDB(ctx, r.db).First(&restaurant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (r *restaurantRepository) List(ctx context.Context, companyID, onlyID *uuid.UUID, offset, limit int) ([]model.Restaurant, int64, error) {
	var restaurants []model.Restaurant
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Restaurant{})
	if companyID != nil {
		query = query.Where("company_id = ?", *companyID)
	}
	if onlyID != nil {
		query = query.Where("id = ?", *onlyID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("name asc").Offset(offset).Limit(limit).Find(&restaurants).Error; err != nil {
		return nil, 0, err
	}
	return restaurants, total, nil
}

func (r *restaurantRepository) CountDependents(ctx context.Context, id uuid.UUID) (int64, error) {
	db := GetDB(ctx, r.db)
	var total int64
	for _, m := range []interface{}{&model.Table{}, &model.Product{}, &model.Category{}, &model.Order{}} {
		var n int64
		if err := db.Model(m).Where("restaurant_id = ?", id).Count(&n).Error; err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
