package handler

import (
	"restaurant-backend/internal/service"
	"restaurant-backend/pkg/pagination"

	"github.com/gin-gonic/gin"
)

// CatalogHandler serves categories, tax rates and products.
type CatalogHandler struct {
	catalogService service.CatalogService
}

func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	categories := router.Group("/categories")
	{
		categories.GET("", h.ListCategories)
		categories.GET("/:id", h.GetCategory)
		categories.POST("", h.CreateCategory)
		categories.PUT("/:id", h.UpdateCategory)
		categories.DELETE("/:id", h.DeleteCategory)
	}

	taxRates := router.Group("/tax-rates")
	{
		taxRates.GET("", h.ListTaxRates)
		taxRates.GET("/:id", h.GetTaxRate)
		taxRates.POST("", h.CreateTaxRate)
		taxRates.PUT("/:id", h.UpdateTaxRate)
		taxRates.DELETE("/:id", h.DeleteTaxRate)
	}

	products := router.Group("/products")
	{
		products.GET("", h.ListProducts)
		products.GET("/:id", h.GetProduct)
		products.POST("", h.CreateProduct)
		products.PUT("/:id", h.UpdateProduct)
		products.DELETE("/:id", h.DeleteProduct)
		products.POST("/:id/stock", h.AdjustStock)
	}
}

// --- Categories ---

func (h *CatalogHandler) ListCategories(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	restaurantID, valid := queryUUID(c, "restaurant_id")
	if !valid {
		return
	}
	page, err := h.catalogService.ListCategories(c.Request.Context(), actor, restaurantID, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

func (h *CatalogHandler) GetCategory(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	category, err := h.catalogService.GetCategory(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, category)
}

func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	category, err := h.catalogService.CreateCategory(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, category)
}

func (h *CatalogHandler) UpdateCategory(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	category, err := h.catalogService.UpdateCategory(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, category)
}

func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.catalogService.DeleteCategory(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

// --- Tax rates ---

func (h *CatalogHandler) ListTaxRates(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	page, err := h.catalogService.ListTaxRates(c.Request.Context(), actor, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

func (h *CatalogHandler) GetTaxRate(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	rate, err := h.catalogService.GetTaxRate(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, rate)
}

func (h *CatalogHandler) CreateTaxRate(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.TaxRateRequest
	if !bindJSON(c, &req) {
		return
	}
	rate, err := h.catalogService.CreateTaxRate(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, rate)
}

func (h *CatalogHandler) UpdateTaxRate(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.TaxRateRequest
	if !bindJSON(c, &req) {
		return
	}
	rate, err := h.catalogService.UpdateTaxRate(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, rate)
}

func (h *CatalogHandler) DeleteTaxRate(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.catalogService.DeleteTaxRate(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

// --- Products ---

// ListProducts handles GET /api/products?restaurant_id=&category_id=&search=
func (h *CatalogHandler) ListProducts(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	restaurantID, valid := queryUUID(c, "restaurant_id")
	if !valid {
		return
	}
	categoryID, valid := queryUUID(c, "category_id")
	if !valid {
		return
	}
	q := service.ProductQuery{RestaurantID: restaurantID, CategoryID: categoryID, Search: c.Query("search")}
	page, err := h.catalogService.ListProducts(c.Request.Context(), actor, q, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

func (h *CatalogHandler) GetProduct(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	product, err := h.catalogService.GetProduct(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, product)
}

func (h *CatalogHandler) CreateProduct(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}
	product, err := h.catalogService.CreateProduct(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, product)
}

// UpdateProduct never touches stock; use AdjustStock.
func (h *CatalogHandler) UpdateProduct(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.UpdateProductRequest
	if !bindJSON(c, &req) {
		return
	}
	product, err := h.catalogService.UpdateProduct(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, product)
}

func (h *CatalogHandler) DeleteProduct(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.catalogService.DeleteProduct(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

// AdjustStock handles POST /api/products/:id/stock with a signed delta.
func (h *CatalogHandler) AdjustStock(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.AdjustStockRequest
	if !bindJSON(c, &req) {
		return
	}
	product, err := h.catalogService.AdjustStock(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, product)
}
