package service

import (
	"errors"
	"testing"

	"restaurant-backend/internal/model"
	"restaurant-backend/internal/permission"
	"restaurant-backend/pkg/apperror"
	"restaurant-backend/pkg/pagination"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyLifecycle(t *testing.T) {
	f := newFixture(t)

	_, err := f.companySvc.CreateCompany(f.ctx, f.root, CompanyRequest{Name: "Acme Foods"})
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	tenant := f.staff(f.restaurant, permission.CompanyWrite)
	_, err = f.companySvc.CreateCompany(f.ctx, tenant, CompanyRequest{Name: "Side Hustle"})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	c, err := f.companySvc.CreateCompany(f.ctx, f.root, CompanyRequest{Name: " Bistro Group ", Website: "https://bistro.example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Bistro Group", c.Name)

	r, err := f.companySvc.CreateRestaurant(f.ctx, f.root, RestaurantRequest{CompanyID: c.ID, Name: "Bistro One"})
	require.NoError(t, err)

	err = f.companySvc.DeleteCompany(f.ctx, f.root, c.ID)
	require.True(t, errors.Is(err, apperror.ErrConflict))
	assert.Equal(t, int64(1), apperror.DependentsOf(err))

	require.NoError(t, f.companySvc.DeleteRestaurant(f.ctx, f.root, r.ID))
	require.NoError(t, f.companySvc.DeleteCompany(f.ctx, f.root, c.ID))
}

func TestRestaurantRules(t *testing.T) {
	f := newFixture(t)

	err := f.companySvc.DeleteRestaurant(f.ctx, f.root, f.restaurant.ID)
	require.True(t, errors.Is(err, apperror.ErrConflict))
	assert.Positive(t, apperror.DependentsOf(err))

	other := &model.Company{Name: "Other"}
	require.NoError(t, f.companies.Create(f.ctx, other))
	_, err = f.companySvc.UpdateRestaurant(f.ctx, f.root, f.restaurant.ID, RestaurantRequest{CompanyID: other.ID, Name: "Moved"})
	assert.True(t, errors.Is(err, apperror.ErrInvalid))

	staff := f.staff(f.restaurant, permission.RestaurantWrite, permission.RestaurantRead)
	_, err = f.companySvc.CreateRestaurant(f.ctx, staff, RestaurantRequest{CompanyID: f.company.ID, Name: "Franchise"})
	assert.True(t, errors.Is(err, apperror.ErrUnauthorized))

	f.newRestaurant(f.company.ID, "Second")
	page, err := f.companySvc.ListRestaurants(f.ctx, staff, nil, pagination.New(1, 10))
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, f.restaurant.ID, page.Items[0].ID)

	companies, err := f.companySvc.ListCompanies(f.ctx, f.staff(f.restaurant, permission.CompanyRead), pagination.New(1, 10))
	require.NoError(t, err)
	require.Len(t, companies.Items, 1)
	assert.Equal(t, f.company.ID, companies.Items[0].ID)
}

func TestCategoryAndProductRules(t *testing.T) {
	f := newFixture(t)
	other := f.newRestaurant(f.company.ID, "Pier")
	foreignCategory, err := f.catalog.CreateCategory(f.ctx, f.root, CategoryRequest{RestaurantID: other.ID, Name: "Drinks"})
	require.NoError(t, err)

	_, err = f.catalog.CreateProduct(f.ctx, f.root, CreateProductRequest{
		RestaurantID: f.restaurant.ID,
		CategoryID:   foreignCategory.ID,
		Name:         "Lemonade",
		Price:        decimal.NewFromInt(3),
	})
	assert.True(t, errors.Is(err, apperror.ErrInvalid))

	_, err = f.catalog.CreateProduct(f.ctx, f.root, CreateProductRequest{
		RestaurantID: f.restaurant.ID,
		CategoryID:   f.category.ID,
		Name:         "Broken",
		Price:        decimal.NewFromInt(-3),
	})
	assert.True(t, errors.Is(err, apperror.ErrInvalid))

	p, err := f.catalog.CreateProduct(f.ctx, f.root, CreateProductRequest{
		RestaurantID: f.restaurant.ID,
		CategoryID:   f.category.ID,
		Name:         "Risotto",
		Price:        decimal.NewFromInt(14),
		Stock:        2,
	})
	require.NoError(t, err)

	err = f.catalog.DeleteCategory(f.ctx, f.root, f.category.ID)
	require.True(t, errors.Is(err, apperror.ErrConflict))
	assert.Equal(t, int64(1), apperror.DependentsOf(err))

	f.order(OrderLineRequest{ProductID: p.ID, Quantity: 1})
	err = f.catalog.DeleteProduct(f.ctx, f.root, p.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	price := decimal.NewFromInt(15)
	updated, err := f.catalog.UpdateProduct(f.ctx, f.root, p.ID, UpdateProductRequest{Price: &price})
	require.NoError(t, err)
	requireDecimal(t, "15", updated.Price)
	assert.Equal(t, 1, updated.Stock)
}

func TestAdjustStock(t *testing.T) {
	f := newFixture(t)
	p := f.product("Fries", "4", 2, nil)

	_, err := f.catalog.AdjustStock(f.ctx, f.root, p.ID, AdjustStockRequest{Delta: -3, Reason: "spoiled"})
	assert.True(t, errors.Is(err, apperror.ErrInsufficientStock))
	assert.Equal(t, 2, f.stockOf(p.ID))

	_, err = f.catalog.AdjustStock(f.ctx, f.root, p.ID, AdjustStockRequest{Delta: 0})
	assert.True(t, errors.Is(err, apperror.ErrInvalid))

	got, err := f.catalog.AdjustStock(f.ctx, f.root, p.ID, AdjustStockRequest{Delta: 10, Reason: "delivery"})
	require.NoError(t, err)
	assert.Equal(t, 12, got.Stock)

	logs, err := f.auditSvc.GetAuditLogs(f.ctx, f.root, AuditQuery{Action: model.ActionAdjustStock}, pagination.New(1, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), logs.Total)
}

func TestTaxRateRules(t *testing.T) {
	f := newFixture(t)

	rate, err := f.catalog.CreateTaxRate(f.ctx, f.root, TaxRateRequest{Name: "Standard", Percentage: decimal.NewFromInt(20)})
	require.NoError(t, err)
	_, err = f.catalog.CreateTaxRate(f.ctx, f.root, TaxRateRequest{Name: "Standard", Percentage: decimal.NewFromInt(5)})
	assert.True(t, errors.Is(err, apperror.ErrConflict))
	_, err = f.catalog.CreateTaxRate(f.ctx, f.root, TaxRateRequest{Name: "Absurd", Percentage: decimal.NewFromInt(120)})
	assert.True(t, errors.Is(err, apperror.ErrInvalid))

	f.product("Wine", "9", 1, &rate.ID)
	err = f.catalog.DeleteTaxRate(f.ctx, f.root, rate.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	spare, err := f.catalog.CreateTaxRate(f.ctx, f.root, TaxRateRequest{Name: "Zero", Percentage: decimal.Zero})
	require.NoError(t, err)
	require.NoError(t, f.catalog.DeleteTaxRate(f.ctx, f.root, spare.ID))

	clerk := f.staff(f.restaurant, permission.TaxRateRead)
	_, err = f.catalog.CreateTaxRate(f.ctx, clerk, TaxRateRequest{Name: "Clerk rate", Percentage: decimal.NewFromInt(1)})
	assert.True(t, errors.Is(err, apperror.ErrForbidden))
}
