package handler

import (
	"restaurant-backend/internal/model"
	"restaurant-backend/internal/service"
	"restaurant-backend/pkg/pagination"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	orderService   service.OrderService
	invoiceService service.InvoiceService
}

func NewOrderHandler(orderService service.OrderService, invoiceService service.InvoiceService) *OrderHandler {
	return &OrderHandler{orderService: orderService, invoiceService: invoiceService}
}

func (h *OrderHandler) RegisterRoutes(router *gin.RouterGroup) {
	orders := router.Group("/orders")
	{
		orders.GET("", h.ListOrders)
		orders.GET("/:id", h.GetOrder)
		orders.POST("", h.CreateOrder)
		orders.PUT("/:id/status", h.UpdateStatus)
		orders.DELETE("/:id", h.DeleteOrder)
		orders.POST("/:id/lines", h.AddLine)
		orders.POST("/:id/invoice", h.CreateInvoice)
	}

	lines := router.Group("/order-lines")
	{
		lines.PUT("/:id", h.UpdateLine)
		lines.DELETE("/:id", h.DeleteLine)
	}
}

// ListOrders handles GET /api/orders?restaurant_id=&customer_id=&table_id=&status=
func (h *OrderHandler) ListOrders(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	q := service.OrderQuery{Status: c.Query("status")}
	var valid bool
	if q.RestaurantID, valid = queryUUID(c, "restaurant_id"); !valid {
		return
	}
	if q.CustomerID, valid = queryUUID(c, "customer_id"); !valid {
		return
	}
	if q.TableID, valid = queryUUID(c, "table_id"); !valid {
		return
	}

	page, err := h.orderService.ListOrders(c.Request.Context(), actor, q, pagination.Parse(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, page)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	order, err := h.orderService.GetOrder(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, order)
}

// CreateOrder reserves stock for every line; a shortfall rolls the whole order back.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	var req service.CreateOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	order, err := h.orderService.CreateOrder(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, order)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
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
	order, err := h.orderService.UpdateStatus(c.Request.Context(), actor, id, model.OrderStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, order)
}

func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.orderService.DeleteOrder(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

func (h *OrderHandler) AddLine(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.OrderLineRequest
	if !bindJSON(c, &req) {
		return
	}
	line, err := h.orderService.AddLine(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, line)
}

func (h *OrderHandler) UpdateLine(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.UpdateOrderLineRequest
	if !bindJSON(c, &req) {
		return
	}
	line, err := h.orderService.UpdateLine(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, line)
}

func (h *OrderHandler) DeleteLine(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.orderService.DeleteLine(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	deleted(c, id)
}

// CreateInvoice handles POST /api/orders/:id/invoice, billing the order's lines.
func (h *OrderHandler) CreateInvoice(c *gin.Context) {
	actor, found := actorOf(c)
	if !found {
		return
	}
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req service.CreateInvoiceFromOrderRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	invoice, err := h.invoiceService.CreateFromOrder(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, invoice)
}
