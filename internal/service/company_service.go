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
)

type CompanyRequest struct {
	Name       string     `json:"name" validate:"required,max=255"`
	Address    string     `json:"address" validate:"max=255"`
	Phone      string     `json:"phone" validate:"max=50"`
	City       string     `json:"city" validate:"max=100"`
	Email      string     `json:"email" validate:"omitempty,email"`
	Country    string     `json:"country" validate:"max=100"`
	PostalCode string     `json:"postal_code" validate:"max=20"`
	Website    string     `json:"website" validate:"omitempty,url"`
	TaxRateID  *uuid.UUID `json:"tax_rate_id"`
}

type RestaurantRequest struct {
	CompanyID uuid.UUID `json:"company_id" validate:"uuid_required"`
	Name      string    `json:"name" validate:"required,max=255"`
	Address   string    `json:"address" validate:"max=255"`
	Phone     string    `json:"phone" validate:"max=50"`
	Email     string    `json:"email" validate:"omitempty,email"`
}

type CompanyService interface {
	CreateCompany(ctx context.Context, actor Actor, req CompanyRequest) (*model.Company, error)
	UpdateCompany(ctx context.Context, actor Actor, id uuid.UUID, req CompanyRequest) (*model.Company, error)
	DeleteCompany(ctx context.Context, actor Actor, id uuid.UUID) error
	GetCompany(ctx context.Context, actor Actor, id uuid.UUID) (*model.Company, error)
	ListCompanies(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[model.Company], error)

	CreateRestaurant(ctx context.Context, actor Actor, req RestaurantRequest) (*model.Restaurant, error)
	UpdateRestaurant(ctx context.Context, actor Actor, id uuid.UUID, req RestaurantRequest) (*model.Restaurant, error)
	DeleteRestaurant(ctx context.Context, actor Actor, id uuid.UUID) error
	GetRestaurant(ctx context.Context, actor Actor, id uuid.UUID) (*model.Restaurant, error)
	ListRestaurants(ctx context.Context, actor Actor, companyID *uuid.UUID, p pagination.Params) (pagination.Page[model.Restaurant], error)
}

type companyService struct {
	companies   repository.CompanyRepository
	restaurants repository.RestaurantRepository
	taxRates    repository.TaxRateRepository
	txManager   repository.TransactionManager
	guard       *Guard
}

func NewCompanyService(
	companies repository.CompanyRepository,
	restaurants repository.RestaurantRepository,
	taxRates repository.TaxRateRepository,
	txManager repository.TransactionManager,
	guard *Guard,
) CompanyService {
	return &companyService{
		companies:   companies,
		restaurants: restaurants,
		taxRates:    taxRates,
		txManager:   txManager,
		guard:       guard,
	}
}

// CreateCompany is global: only callers without a tenant restriction pass
// the scope check for a company that does not exist yet.
func (s *companyService) CreateCompany(ctx context.Context, actor Actor, req CompanyRequest) (*model.Company, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if !actor.IsSuperuser && (actor.CompanyID != nil || actor.RestaurantID != nil) {
		return nil, apperror.Unauthorized("tenant users cannot create companies")
	}
	if err := s.guard.Require(ctx, actor, permission.CompanyWrite); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureNameFree(ctx, name, uuid.Nil); err != nil {
		return nil, err
	}
	if err := s.checkTaxRate(ctx, req.TaxRateID); err != nil {
		return nil, err
	}

	company := &model.Company{}
	applyCompany(company, req)
	company.Name = name
	if err := s.companies.Create(ctx, company); err != nil {
		if repository.IsDuplicate(err) {
			return nil, apperror.Conflict("company %q already exists", name)
		}
		return nil, fmt.Errorf("failed to create company: %w", err)
	}
	return company, nil
}

func (s *companyService) UpdateCompany(ctx context.Context, actor Actor, id uuid.UUID, req CompanyRequest) (*model.Company, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	company, err := s.loadCompany(ctx, actor, id, permission.CompanyWrite)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureNameFree(ctx, name, company.ID); err != nil {
		return nil, err
	}
	if err := s.checkTaxRate(ctx, req.TaxRateID); err != nil {
		return nil, err
	}

	applyCompany(company, req)
	company.Name = name
	if err := s.companies.Update(ctx, company); err != nil {
		return nil, fmt.Errorf("failed to update company: %w", err)
	}
	return company, nil
}

func (s *companyService) DeleteCompany(ctx context.Context, actor Actor, id uuid.UUID) error {
	company, err := s.loadCompany(ctx, actor, id, permission.CompanyDelete)
	if err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		restaurants, err := s.companies.CountRestaurants(txCtx, company.ID)
		if err != nil {
			return fmt.Errorf("failed to count restaurants: %w", err)
		}
		if restaurants > 0 {
			return apperror.ConflictWithDependents(restaurants, "company %s still has %d restaurants", company.Name, restaurants)
		}
		if err := s.companies.Delete(txCtx, company.ID); err != nil {
			return fmt.Errorf("failed to delete company: %w", err)
		}
		return nil
	})
}

func (s *companyService) GetCompany(ctx context.Context, actor Actor, id uuid.UUID) (*model.Company, error) {
	return s.loadCompany(ctx, actor, id, permission.CompanyRead)
}

// ListCompanies shows tenant users only their own company.
func (s *companyService) ListCompanies(ctx context.Context, actor Actor, p pagination.Params) (pagination.Page[model.Company], error) {
	if err := s.guard.Require(ctx, actor, permission.CompanyRead); err != nil {
		return pagination.Page[model.Company]{}, err
	}
	var onlyID *uuid.UUID
	if !actor.IsSuperuser {
		if actor.CompanyID == nil {
			return pagination.Page[model.Company]{}, apperror.Unauthorized("no tenant assigned")
		}
		onlyID = actor.CompanyID
	}
	companies, total, err := s.companies.List(ctx, onlyID, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.Company]{}, fmt.Errorf("failed to fetch companies: %w", err)
	}
	return pagination.NewPage(companies, total, p), nil
}

func (s *companyService) loadCompany(ctx context.Context, actor Actor, id uuid.UUID, required ...permission.Name) (*model.Company, error) {
	company, err := s.companies.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "company", id)
	}
	if err := s.guard.Authorize(ctx, actor, CompanyScope(company.ID), required...); err != nil {
		return nil, err
	}
	return company, nil
}

func (s *companyService) ensureNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.companies.FindByName(ctx, name)
	if err == nil && existing.ID != self {
		return apperror.Conflict("company %q already exists", name)
	}
	if err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("failed to check company name: %w", err)
	}
	return nil
}

func (s *companyService) checkTaxRate(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := s.taxRates.FindByID(ctx, *id); err != nil {
		return lookupErr(err, "tax rate", *id)
	}
	return nil
}

func applyCompany(c *model.Company, req CompanyRequest) {
	c.Address = req.Address
	c.Phone = req.Phone
	c.City = req.City
	c.Email = req.Email
	c.Country = req.Country
	c.PostalCode = req.PostalCode
	c.Website = req.Website
	c.TaxRateID = req.TaxRateID
}

// --- Restaurants ---

func (s *companyService) CreateRestaurant(ctx context.Context, actor Actor, req RestaurantRequest) (*model.Restaurant, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	company, err := s.companies.FindByID(ctx, req.CompanyID)
	if err != nil {
		return nil, lookupErr(err, "company", req.CompanyID)
	}
	if actor.RestaurantID != nil && !actor.IsSuperuser {
		return nil, apperror.Unauthorized("restaurant staff cannot create restaurants")
	}
	if err := s.guard.Authorize(ctx, actor, CompanyScope(company.ID), permission.RestaurantWrite); err != nil {
		return nil, err
	}

	restaurant := &model.Restaurant{
		CompanyID: company.ID,
		Name:      strings.TrimSpace(req.Name),
		Address:   req.Address,
		Phone:     req.Phone,
		Email:     req.Email,
	}
	if err := s.restaurants.Create(ctx, restaurant); err != nil {
		return nil, fmt.Errorf("failed to create restaurant: %w", err)
	}
	return restaurant, nil
}

func (s *companyService) UpdateRestaurant(ctx context.Context, actor Actor, id uuid.UUID, req RestaurantRequest) (*model.Restaurant, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	restaurant, err := s.loadRestaurant(ctx, actor, id, permission.RestaurantWrite)
	if err != nil {
		return nil, err
	}
	if req.CompanyID != restaurant.CompanyID {
		return nil, apperror.Invalid("a restaurant cannot move to another company")
	}
	restaurant.Name = strings.TrimSpace(req.Name)
	restaurant.Address = req.Address
	restaurant.Phone = req.Phone
	restaurant.Email = req.Email
	if err := s.restaurants.Update(ctx, restaurant); err != nil {
		return nil, fmt.Errorf("failed to update restaurant: %w", err)
	}
	return restaurant, nil
}

func (s *companyService) DeleteRestaurant(ctx context.Context, actor Actor, id uuid.UUID) error {
	restaurant, err := s.loadRestaurant(ctx, actor, id, permission.RestaurantDelete)
	if err != nil {
		return err
	}
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		dependents, err := s.restaurants.CountDependents(txCtx, restaurant.ID)
		if err != nil {
			return fmt.Errorf("failed to count restaurant dependents: %w", err)
		}
		if dependents > 0 {
			return apperror.ConflictWithDependents(dependents, "restaurant %s still owns %d records", restaurant.Name, dependents)
		}
		if err := s.restaurants.Delete(txCtx, restaurant.ID); err != nil {
			return fmt.Errorf("failed to delete restaurant: %w", err)
		}
		return nil
	})
}

func (s *companyService) GetRestaurant(ctx context.Context, actor Actor, id uuid.UUID) (*model.Restaurant, error) {
	return s.loadRestaurant(ctx, actor, id, permission.RestaurantRead)
}

func (s *companyService) ListRestaurants(ctx context.Context, actor Actor, companyID *uuid.UUID, p pagination.Params) (pagination.Page[model.Restaurant], error) {
	if err := s.guard.Require(ctx, actor, permission.RestaurantRead); err != nil {
		return pagination.Page[model.Restaurant]{}, err
	}
	var onlyID *uuid.UUID
	switch {
	case actor.IsSuperuser:
	case actor.RestaurantID != nil:
		onlyID = actor.RestaurantID
		companyID = nil
	case actor.CompanyID != nil:
		companyID = actor.CompanyID
	default:
		return pagination.Page[model.Restaurant]{}, apperror.Unauthorized("no tenant assigned")
	}
	restaurants, total, err := s.restaurants.List(ctx, companyID, onlyID, p.Offset, p.Limit)
	if err != nil {
		return pagination.Page[model.Restaurant]{}, fmt.Errorf("failed to fetch restaurants: %w", err)
	}
	return pagination.NewPage(restaurants, total, p), nil
}

func (s *companyService) loadRestaurant(ctx context.Context, actor Actor, id uuid.UUID, required ...permission.Name) (*model.Restaurant, error) {
	restaurant, err := s.restaurants.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "restaurant", id)
	}
	if err := s.guard.Authorize(ctx, actor, RestaurantScope(restaurant.ID, &restaurant.CompanyID), required...); err != nil {
		return nil, err
	}
	return restaurant, nil
}
