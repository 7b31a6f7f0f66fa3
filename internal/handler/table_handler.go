package handler

import (
	"restaurant-backend/internal/model"
	"restaurant-backend/internal/service"
	"restaurant-backend/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type TableHandler struct {
	tableService service.TableService
}

func NewTableHandler(tableService service.TableService) *TableHandler {
	return &TableHandler{tableService: tableService}
}

func (h *TableHandler) RegisterRoutes(router *gin.RouterGroup) {
	tables := router.Group("/tables")
	{
		tables.GET("", h.ListTables)
		tables.GET("/:id", h.GetTable)
		tables.POST("", h.CreateTable)
		tables.PUT("/:id", h.UpdateTable)
		tables.DELETE("/:id", h.DeleteTable)

		tables.POST("/:id/assign", h.AssignOrder)
		tables.POST("/:id/release", h.Release)
		tables.PUT("/:id/status", h.SetStatus)
	}
}

// ListTables handles GET /api/tables?restaurant_id=&status=
func (h *TableHandler) ListTables(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	restaurantID, valid := queryUUID(c, "restaurant_id")
	if !valid {
		return
	}
	q := service.TableQuery{RestaurantID: restaurantID, Status: c.Query("status")}
	page, err := h.tableService.ListTables(c.Request.Context(), actor, q, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

func (h *TableHandler) GetTable(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	table, err := h.tableService.GetTable(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, table)
}

func (h *TableHandler) CreateTable(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.CreateTableRequest
	if !bindJSON(c, &req) {
		return
	}
	table, err := h.tableService.CreateTable(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, table)
}

func (h *TableHandler) UpdateTable(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.UpdateTableRequest
	if !bindJSON(c, &req) {
		return
	}
	table, err := h.tableService.UpdateTable(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, table)
}

func (h *TableHandler) DeleteTable(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.tableService.DeleteTable(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

// AssignOrder seats an order at the table and marks it occupied.
func (h *TableHandler) AssignOrder(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.AssignOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	table, err := h.tableService.AssignOrder(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, table)
}

func (h *TableHandler) Release(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	table, err := h.tableService.Release(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, table)
}

func (h *TableHandler) SetStatus(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req statusRequest
	if !bindJSON(c, &req) {
		return
	}
	table, err := h.tableService.SetStatus(c.Request.Context(), actor, id, model.TableStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, table)
}
