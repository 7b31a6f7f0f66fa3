package service

import (
	"context"
	"fmt"
	"strings"

	"restaurant-backend/internal/permission"
	"restaurant-backend/internal/repository"
	"restaurant-backend/pkg/apperror"

	"github.com/google/uuid"
)

// Guard layers tenant scoping on top of the permission resolver.
// Callers load the target first so a missing entity reports NotFound
// before any scope or permission failure.
type Guard struct {
	resolver    *PermissionResolver
	restaurants repository.RestaurantRepository
}

func NewGuard(resolver *PermissionResolver, restaurants repository.RestaurantRepository) *Guard {
	return &Guard{resolver: resolver, restaurants: restaurants}
}

func (g *Guard) Resolver() *PermissionResolver {
	return g.resolver
}

// Authorize checks tenant scope, then that actor holds all of required.
func (g *Guard) Authorize(ctx context.Context, actor Actor, scope Scope, required ...permission.Name) error {
	if err := g.CheckScope(ctx, actor, scope); err != nil {
		return err
	}
	return g.Require(ctx, actor, required...)
}

// AuthorizeAny checks tenant scope, then that actor holds one of required.
func (g *Guard) AuthorizeAny(ctx context.Context, actor Actor, scope Scope, required ...permission.Name) error {
	if err := g.CheckScope(ctx, actor, scope); err != nil {
		return err
	}
	ok, err := g.resolver.CheckAny(ctx, actor, required...)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Forbidden("requires one of: %s", joinNames(required))
	}
	return nil
}

// Require is the permission gate alone, for global resources and lists.
func (g *Guard) Require(ctx context.Context, actor Actor, required ...permission.Name) error {
	ok, err := g.resolver.Check(ctx, actor, required...)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Forbidden("requires: %s", joinNames(required))
	}
	return nil
}

// CheckScope enforces the tenant boundary. Restaurants are compared when
// both sides have one, companies otherwise.
func (g *Guard) CheckScope(ctx context.Context, actor Actor, scope Scope) error {
	if actor.IsSuperuser || scope.Global() {
		return nil
	}

	if scope.RestaurantID != nil && actor.RestaurantID != nil {
		if *scope.RestaurantID == *actor.RestaurantID {
			return nil
		}
		return apperror.Unauthorized("restaurant %s is outside of your scope", *scope.RestaurantID)
	}

	companyID := scope.CompanyID
	if companyID == nil && scope.RestaurantID != nil && actor.CompanyID != nil {
		restaurant, err := g.restaurants.FindByID(ctx, *scope.RestaurantID)
		if err != nil {
			if repository.IsNotFound(err) {
				return apperror.Unauthorized("restaurant %s is outside of your scope", *scope.RestaurantID)
			}
			return fmt.Errorf("failed to resolve restaurant company: %w", err)
		}
		companyID = &restaurant.CompanyID
	}

	if companyID != nil && actor.CompanyID != nil && *companyID == *actor.CompanyID {
		return nil
	}
	return apperror.Unauthorized("resource is outside of your scope")
}

// RestaurantFilter pins a list over restaurant-owned rows. Restaurant
// staff always see their own restaurant; company staff must name one of
// their restaurants.
func (g *Guard) RestaurantFilter(ctx context.Context, actor Actor, requested *uuid.UUID) (*uuid.UUID, error) {
	if actor.IsSuperuser {
		return requested, nil
	}
	if actor.RestaurantID != nil {
		return actor.RestaurantID, nil
	}
	if actor.CompanyID == nil {
		return nil, apperror.Unauthorized("no tenant assigned")
	}
	if requested == nil {
		return nil, apperror.Invalid("restaurant_id is required")
	}
	if err := g.CheckScope(ctx, actor, Scope{RestaurantID: requested}); err != nil {
		return nil, err
	}
	return requested, nil
}

// TenantFilter pins a list over rows carrying both restaurant and company columns.
func (g *Guard) TenantFilter(actor Actor, restaurantID, companyID *uuid.UUID) (*uuid.UUID, *uuid.UUID, error) {
	switch {
	case actor.IsSuperuser:
		return restaurantID, companyID, nil
	case actor.RestaurantID != nil:
		return actor.RestaurantID, nil, nil
	case actor.CompanyID != nil:
		return restaurantID, actor.CompanyID, nil
	}
	return nil, nil, apperror.Unauthorized("no tenant assigned")
}

func joinNames(names []permission.Name) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}
