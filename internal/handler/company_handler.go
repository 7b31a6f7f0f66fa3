package handler

import (
	"restaurant-backend/internal/service"
	"restaurant-backend/pkg/pagination"

	"github.com/gin-gonic/gin"
)

// CompanyHandler serves companies and the restaurants under them.
type CompanyHandler struct {
	companyService service.CompanyService
}

func NewCompanyHandler(companyService service.CompanyService) *CompanyHandler {
	return &CompanyHandler{companyService: companyService}
}

func (h *CompanyHandler) RegisterRoutes(router *gin.RouterGroup) {
	companies := router.Group("/companies")
	{
		companies.GET("", h.ListCompanies)
		companies.GET("/:id", h.GetCompany)
		companies.POST("", h.CreateCompany)
		companies.PUT("/:id", h.UpdateCompany)
		companies.DELETE("/:id", h.DeleteCompany)
	}

	restaurants := router.Group("/restaurants")
	{
		restaurants.GET("", h.ListRestaurants)
		restaurants.GET("/:id", h.GetRestaurant)
		restaurants.POST("", h.CreateRestaurant)
		restaurants.PUT("/:id", h.UpdateRestaurant)
		restaurants.DELETE("/:id", h.DeleteRestaurant)
	}
}

func (h *CompanyHandler) ListCompanies(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	page, err := h.companyService.ListCompanies(c.Request.Context(), actor, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

func (h *CompanyHandler) GetCompany(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	company, err := h.companyService.GetCompany(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, company)
}

func (h *CompanyHandler) CreateCompany(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.CompanyRequest
	if !bindJSON(c, &req) {
		return
	}
	company, err := h.companyService.CreateCompany(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, company)
}

func (h *CompanyHandler) UpdateCompany(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.CompanyRequest
	if !bindJSON(c, &req) {
		return
	}
	company, err := h.companyService.UpdateCompany(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, company)
}

func (h *CompanyHandler) DeleteCompany(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.companyService.DeleteCompany(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

func (h *CompanyHandler) ListRestaurants(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	companyID, valid := queryUUID(c, "company_id")
	if !valid {
		return
	}
	page, err := h.companyService.ListRestaurants(c.Request.Context(), actor, companyID, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

func (h *CompanyHandler) GetRestaurant(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	restaurant, err := h.companyService.GetRestaurant(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, restaurant)
}

func (h *CompanyHandler) CreateRestaurant(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.RestaurantRequest
	if !bindJSON(c, &req) {
		return
	}
	restaurant, err := h.companyService.CreateRestaurant(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, restaurant)
}

func (h *CompanyHandler) UpdateRestaurant(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.RestaurantRequest
	if !bindJSON(c, &req) {
		return
	}
	restaurant, err := h.companyService.UpdateRestaurant(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, restaurant)
}

func (h *CompanyHandler) DeleteRestaurant(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.companyService.DeleteRestaurant(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}
