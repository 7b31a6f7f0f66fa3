package service

import (
	"restaurant-backend/internal/model"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID           uuid.UUID
	IsSuperuser  bool
	CompanyID    *uuid.UUID
	RestaurantID *uuid.UUID
}

func ActorFromUser(u *model.User) Actor {
	return Actor{
		ID:           u.ID,
		IsSuperuser:  u.IsSuperuser,
		CompanyID:    u.CompanyID,
		RestaurantID: u.RestaurantID,
	}
}

// SystemActor is used by CLI jobs and seeding.
func SystemActor() Actor {
	return Actor{IsSuperuser: true}
}

// actorRef returns the actor id for audit columns, nil for the system actor.
func (a Actor) actorRef() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}

// Scope is the tenant a target entity belongs to. The zero Scope is global.
type Scope struct {
	CompanyID    *uuid.UUID
	RestaurantID *uuid.UUID
}

func (s Scope) Global() bool {
	return s.CompanyID == nil && s.RestaurantID == nil
}

func RestaurantScope(restaurantID uuid.UUID, companyID *uuid.UUID) Scope {
	return Scope{CompanyID: companyID, RestaurantID: &restaurantID}
}

func CompanyScope(companyID uuid.UUID) Scope {
	return Scope{CompanyID: &companyID}
}

func invoiceScope(inv *model.Invoice) Scope {
	return RestaurantScope(inv.RestaurantID, inv.CompanyID)
}

func orderScope(o *model.Order) Scope {
	companyID := o.CompanyID
	return RestaurantScope(o.RestaurantID, &companyID)
}

func tableScope(t *model.Table) Scope {
	return Scope{RestaurantID: &t.RestaurantID}
}
