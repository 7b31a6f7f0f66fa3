package service

import (
	"context"
	"fmt"
	"strings"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/repository"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/pagination"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CategoryRequest struct {
	RestaurantID uuid.UUID `json:"restaurant_id" validate:"uuid_required"`
	Name         string    `json:"name" validate:"required,max=100"`
	Description  string    `json:"description" validate:"max=255"`
}

type TaxRateRequest struct {
	Name       string          `json:"name" validate:"required,max=100"`
	Percentage decimal.Decimal `json:"percentage" validate:"gte=0,lte=100"`
}

type CreateProductRequest struct {
	RestaurantID uuid.UUID       `json:"restaurant_id" validate:"uuid_required"`
	CategoryID   uuid.UUID       `json:"category_id" validate:"uuid_required"`
	TaxRateID    *uuid.UUID      `json:"tax_rate_id"`
	Name         string          `json:"name" validate:"required,max=255"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price" validate:"gte=0"`
	Stock        int             `json:"stock" validate:"gte=0"`
}

type UpdateProductRequest struct {
	CategoryID  *uuid.UUID       `json:"category_id"`
	TaxRateID   *uuid.UUID       `json:"tax_rate_id"`
	Name        *string          `json:"name" validate:"omitempty,max=255"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
}

// AdjustStockRequest changes stock by Delta; the result may not go negative.
type AdjustStockRequest struct {
	Delta  int    `json:"delta" validate:"ne=0"`
	Reason string `json:"reason" validate:"max=255"`
}

type ProductQuery struct {
	RestaurantID *uuid.UUID
	CategoryID   *uuid.UUID
	Search       string
}

type CatalogService interface {
	CreateCategory(ctx context.Context, actor Actor, req CategoryRequest) (*model.Category, error)
	UpdateCategory(ctx context.Context, actor Actor, id uuid.UUID, req CategoryRequest) (*model.Category, error)
	DeleteCategory(ctx context.Context, actor Actor, id uuid.UUID) error
	GetCategory(ctx context.Context, actor Actor, id uuid.UUID) (*model.Category, error)
	ListCategories(ctx context.Context, actor Actor, restaurantID *uuid.UUID, p pagination.Params) (pagination.Page[model.Category], error)

	CreateTaxRate(ctx context.Context, actor Actor, req TaxRateRequest) (*model.TaxRate, error)
	UpdateTaxRate(ctx context.Context, actor Actor, id uuid.UUID, req TaxRateRequest) (*model.TaxRate, error)
	DeleteTaxRate(ctx context.Context, actor Actor, id uuid.UUID) error
	GetTaxRate(ctx context.Context, actor Actor, id uuid.UUID) (*model.TaxRate, error)
	ListTaxRates(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[model.TaxRate], error)

	CreateProduct(ctx context.Context, actor Actor, req CreateProductRequest) (*model.Product, error)
	UpdateProduct(ctx context.Context, actor Actor, id uuid.UUID, req UpdateProductRequest) (*model.Product, error)
	DeleteProduct(ctx context.Context, actor Actor, id uuid.UUID) error
	GetProduct(ctx context.Context, actor Actor, id uuid.UUID) (*model.Product, error)
	ListProducts(ctx context.Context, actor Actor, q ProductQuery, p pagination.Params) (pagination.Page[model.Product], error)
	AdjustStock(ctx context.Context, actor Actor, id uuid.UUID, req AdjustStockRequest) (*model.Product, error)
}

type catalogService struct {
	categories  repository.CategoryRepository
	taxRates    repository.TaxRateRepository
	products    repository.ProductRepository
	restaurants repository.RestaurantRepository
	audit       repository.AuditRepository
	txManager   repository.TransactionManager
	guard       *Guard
	logger      *zap.Logger
}

func NewCatalogService(
	categories repository.CategoryRepository,
	taxRates repository.TaxRateRepository,
	products repository.ProductRepository,
	restaurants repository.RestaurantRepository,
	audit repository.AuditRepository,
	txManager repository.TransactionManager,
	guard *Guard,
	logger *zap.Logger,
) CatalogService {
	return &catalogService{
		categories:  categories,
		taxRates:    taxRates,
		products:    products,
		restaurants: restaurants,
		audit:       audit,
		txManager:   txManager,
		guard:       guard,
		logger:      loggerOrNop(logger),
	}
}

// --- Categories ---

func (s *catalogService) CreateCategory(ctx context.Context, actor Actor, req CategoryRequest) (*model.Category, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	restaurant, err := s.restaurants.FindByID(ctx, req.RestaurantID)
	if err != nil {
		return nil, lookupErr(err, "restaurant", req.RestaurantID)
	}
	if err := s.guard.Authorize(ctx, actor, RestaurantScope(restaurant.ID, &restaurant.CompanyID), permission.CategoryWrite); err != nil {
		return nil, err
	}

	category := &model.Category{
		RestaurantID: restaurant.ID,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
	}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return category, nil
}

func (s *catalogService) UpdateCategory(ctx context.Context, actor Actor, id uuid.UUID, req CategoryRequest) (*model.Category, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	category, err := s.loadCategory(ctx, actor, id, permission.CategoryWrite)
	if err != nil {
		return nil, err
	}
	if req.RestaurantID != category.RestaurantID {
		return nil, apperror.Invalid("a category cannot move to another restaurant")
	}
	category.Name = strings.TrimSpace(req.Name)
	category.Description = req.Description
	if err := s.categories.Update(ctx, category); err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	return category, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, actor Actor, id uuid.UUID) error {
	category, err := s.loadCategory(ctx, actor, id, permission.CategoryDelete)
	if err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		products, err := s.categories.CountProducts(txCtx, category.ID)
		if err != nil {
			return fmt.Errorf("failed to count products: %w", err)
		}
		if products > 0 {
			return apperror.ConflictWithDependents(products, "category %s still has %d products", category.Name, products)
		}
		if err := s.categories.Delete(txCtx, category.ID); err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		return nil
	})
}

func (s *catalogService) GetCategory(ctx context.Context, actor Actor, id uuid.UUID) (*model.Category, error) {
	return s.loadCategory(ctx, actor, id, permission.CategoryRead)
}

func (s *catalogService) ListCategories(ctx context.Context, actor Actor, restaurantID *uuid.UUID, p pagination.Params) (pagination.Page[model.Category], error) {
	if err := s.guard.Require(ctx, actor, permission.CategoryRead); err != nil {
		return pagination.Page[model.Category]{}, err
	}
	restaurantID, err := s.guard.RestaurantFilter(ctx, actor, restaurantID)
	if err != nil {
		return pagination.Page[model.Category]{}, err
	}
	categories, total, err := s.categories.List(ctx, restaurantID, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.Category]{}, fmt.Errorf("failed to fetch categories: %w", err)
	}
	return pagination.NewPage(categories, total, p), nil
}

func (s *catalogService) loadCategory(ctx context.Context, actor Actor, id uuid.UUID, required ...permission.Name) (*model.Category, error) {
	category, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "category", id)
	}
	if err := s.guard.Authorize(ctx, actor, Scope{RestaurantID: &category.RestaurantID}, required...); err != nil {
		return nil, err
	}
	return category, nil
}

// --- Tax rates ---

func (s *catalogService) CreateTaxRate(ctx context.Context, actor Actor, req TaxRateRequest) (*model.TaxRate, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.guard.Require(ctx, actor, permission.TaxRateWrite); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureTaxRateNameFree(ctx, name, uuid.Nil); err != nil {
		return nil, err
	}

	rate := &model.TaxRate{Name: name, Percentage: req.Percentage}
	if err := s.taxRates.Create(ctx, rate); err != nil {
		if repository.IsDuplicate(err) {
			return nil, apperror.Conflict("tax rate %q already exists", name)
		}
		return nil, fmt.Errorf("failed to create tax rate: %w", err)
	}
	return rate, nil
}

func (s *catalogService) UpdateTaxRate(ctx context.Context, actor Actor, id uuid.UUID, req TaxRateRequest) (*model.TaxRate, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	rate, err := s.taxRates.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "tax rate", id)
	}
	if err := s.guard.Require(ctx, actor, permission.TaxRateWrite); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureTaxRateNameFree(ctx, name, rate.ID); err != nil {
		return nil, err
	}

	rate.Name = name
	rate.Percentage = req.Percentage
	if err := s.taxRates.Update(ctx, rate); err != nil {
		return nil, fmt.Errorf("failed to update tax rate: %w", err)
	}
	return rate, nil
}

// DeleteTaxRate refuses rates still referenced by products, invoice lines or companies.
func (s *catalogService) DeleteTaxRate(ctx context.Context, actor Actor, id uuid.UUID) error {
	rate, err := s.taxRates.FindByID(ctx, id)
	if err != nil {
		return lookupErr(err, "tax rate", id)
	}
	if err := s.guard.Require(ctx, actor, permission.TaxRateDelete); err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		refs, err := s.taxRates.CountReferences(txCtx, rate.ID)
		if err != nil {
			return fmt.Errorf("failed to count tax rate references: %w", err)
		}
		if refs > 0 {
			return apperror.ConflictWithDependents(refs, "tax rate %s is referenced %d times", rate.Name, refs)
		}
		if err := s.taxRates.Delete(txCtx, rate.ID); err != nil {
			return fmt.Errorf("failed to delete tax rate: %w", err)
		}
		return nil
	})
}

func (s *catalogService) GetTaxRate(ctx context.Context, actor Actor, id uuid.UUID) (*model.TaxRate, error) {
	rate, err := s.taxRates.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "tax rate", id)
	}
	if err := s.guard.Require(ctx, actor, permission.TaxRateRead); err != nil {
		return nil, err
	}
	return rate, nil
}

func (s *catalogService) ListTaxRates(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[model.TaxRate], error) {
	if err := s.guard.Require(ctx, actor, permission.TaxRateRead); err != nil {
		return pagination.Page[model.TaxRate]{}, err
	}
	rates, total, err := s.taxRates.List(ctx, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.TaxRate]{}, fmt.Errorf("failed to fetch tax rates: %w", err)
	}
	return pagination.NewPage(rates, total, p), nil
}

func (s *catalogService) ensureTaxRateNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.taxRates.FindByName(ctx, name)
	if err == nil && existing.ID != self {
		return apperror.Conflict("tax rate %q already exists", name)
	}
	if err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("failed to check tax rate name: %w", err)
	}
	return nil
}

// --- Products ---

func (s *catalogService) CreateProduct(ctx context.Context, actor Actor, req CreateProductRequest) (*model.Product, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	restaurant, err := s.restaurants.FindByID(ctx, req.RestaurantID)
	if err != nil {
		return nil, lookupErr(err, "restaurant", req.RestaurantID)
	}
	if err := s.guard.Authorize(ctx, actor, RestaurantScope(restaurant.ID, &restaurant.CompanyID), permission.ProductWrite); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, req.CategoryID, restaurant.ID); err != nil {
		return nil, err
	}
	if err := s.checkTaxRate(ctx, req.TaxRateID); err != nil {
		return nil, err
	}

	product := &model.Product{
		RestaurantID: restaurant.ID,
		CategoryID:   req.CategoryID,
		TaxRateID:    req.TaxRateID,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Price:        req.Price,
		Stock:        req.Stock,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, actor Actor, id uuid.UUID, req UpdateProductRequest) (*model.Product, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	product, err := s.loadProduct(ctx, actor, id, permission.ProductWrite)
	if err != nil {
		return nil, err
	}

	if req.CategoryID != nil {
		if err := s.checkCategory(ctx, *req.CategoryID, product.RestaurantID); err != nil {
			return nil, err
		}
		product.CategoryID = *req.CategoryID
	}
	if req.TaxRateID != nil {
		if err := s.checkTaxRate(ctx, req.TaxRateID); err != nil {
			return nil, err
		}
		product.TaxRateID = req.TaxRateID
	}
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		product.Description = *req.Description
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, apperror.Invalid("price must not be negative")
		}
		product.Price = *req.Price
	}

	// Stock only moves through AdjustStock and order lines.
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.products.FindByIDForUpdate(txCtx, product.ID)
		if err != nil {
			return lookupErr(err, "product", product.ID)
		}
		product.Stock = locked.Stock
		if err := s.products.Update(txCtx, product); err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, actor Actor, id uuid.UUID) error {
	product, err := s.loadProduct(ctx, actor, id, permission.ProductDelete)
	if err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		lines, err := s.products.CountOrderLines(txCtx, product.ID)
		if err != nil {
			return fmt.Errorf("failed to count order lines: %w", err)
		}
		if lines > 0 {
			return apperror.ConflictWithDependents(lines, "product %s appears on %d order lines", product.Name, lines)
		}
		if err := s.products.Delete(txCtx, product.ID); err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}
		return nil
	})
}

func (s *catalogService) GetProduct(ctx context.Context, actor Actor, id uuid.UUID) (*model.Product, error) {
	return s.loadProduct(ctx, actor, id, permission.ProductRead)
}

func (s *catalogService) ListProducts(ctx context.Context, actor Actor, q ProductQuery, p pagination.Params) (pagination.Page[model.Product], error) {
	if err := s.guard.Require(ctx, actor, permission.ProductRead); err != nil {
		return pagination.Page[model.Product]{}, err
	}
	restaurantID, err := s.guard.RestaurantFilter(ctx, actor, q.RestaurantID)
	if err != nil {
		return pagination.Page[model.Product]{}, err
	}
	products, total, err := s.products.List(ctx, repository.ProductFilter{
		RestaurantID: restaurantID,
		CategoryID:   q.CategoryID,
		Search:       q.Search,
	}, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.Product]{}, fmt.Errorf("failed to fetch products: %w", err)
	}
	return pagination.NewPage(products, total, p), nil
}

// AdjustStock is the manual restock/write-off path and is audited.
func (s *catalogService) AdjustStock(ctx context.Context, actor Actor, id uuid.UUID, req AdjustStockRequest) (*model.Product, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	product, err := s.loadProduct(ctx, actor, id, permission.ProductWrite)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		locked, err := s.products.FindByIDForUpdate(txCtx, product.ID)
		if err != nil {
			return lookupErr(err, "product", product.ID)
		}
		next := locked.Stock + req.Delta
		if next < 0 {
			return apperror.InsufficientStock("product %s has %d in stock, cannot remove %d", locked.Name, locked.Stock, -req.Delta)
		}
		if err := s.products.UpdateStock(txCtx, locked.ID, next); err != nil {
			return fmt.Errorf("failed to update stock: %w", err)
		}
		before := locked.Stock
		locked.Stock = next
		product = locked
		return writeAudit(txCtx, s.audit, actor, model.ActionAdjustStock, locked.ID, locked.Name, map[string]interface{}{
			"before": before,
			"after":  next,
			"reason": req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock adjusted",
		zap.String("product", product.ID.String()),
		zap.Int("delta", req.Delta),
		zap.Int("stock", product.Stock),
	)
	return product, nil
}

func (s *catalogService) loadProduct(ctx context.Context, actor Actor, id uuid.UUID, required ...permission.Name) (*model.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "product", id)
	}
	if err := s.guard.Authorize(ctx, actor, Scope{RestaurantID: &product.RestaurantID}, required...); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *catalogService) checkCategory(ctx context.Context, categoryID, restaurantID uuid.UUID) error {
	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return lookupErr(err, "category", categoryID)
	}
	if category.RestaurantID != restaurantID {
		return apperror.Invalid("category %s belongs to another restaurant", category.Name)
	}
	return nil
}

func (s *catalogService) checkTaxRate(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := s.taxRates.FindByID(ctx, *id); err != nil {
		return lookupErr(err, "tax rate", *id)
	}
	return nil
}
